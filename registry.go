package hotwire

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ZenLiuCN/hotwire/future"
	"github.com/rs/zerolog"
)

// registry holds the process wide tables of one Loader: live modules, claimed names, futures by name,
// core providers and the activation queue. One mutex guards all of them; future callbacks never run
// while it is held.
type registry struct {
	mu        sync.Mutex
	modules   map[string]*Module
	claims    map[string]*Module
	futures   map[string]*future.Future[*Module]
	providers map[string]any
	sealed    bool
	queue     []func()
	closed    bool
	poll      time.Duration
	log       zerolog.Logger
}

func newRegistry(poll time.Duration, log zerolog.Logger) *registry {
	return &registry{
		modules:   make(map[string]*Module),
		claims:    make(map[string]*Module),
		futures:   make(map[string]*future.Future[*Module]),
		providers: make(map[string]any),
		poll:      poll,
		log:       log,
	}
}

func (r *registry) provide(name string, provider any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.sealed:
		return fmt.Errorf("%w: %s", ErrProvidersSealed, name)
	case r.providers[name] != nil:
		return fmt.Errorf("%w: %s", ErrProviderExists, name)
	}
	r.providers[name] = provider
	return nil
}

func (r *registry) provider(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	return p, ok
}

// claim reserves the module name until the module unloads and seals the provider table.
func (r *registry) claim(m *Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	if o, ok := r.claims[m.name]; ok {
		return fmt.Errorf("%w: %s %s already loaded from %s", ErrDuplicateModule, m.name, o.version, o.path)
	}
	r.claims[m.name] = m
	return nil
}

// futureOf returns the live future of name, creating it on first reference.
func (r *registry) futureOf(name string) *future.Future[*Module] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.futureLocked(name)
}

func (r *registry) futureLocked(name string) *future.Future[*Module] {
	f, ok := r.futures[name]
	if !ok {
		f = future.New(
			future.WithPoll[*Module](r.poll),
			future.WithStall[*Module](func(waited time.Duration) {
				r.log.Warn().Str("dependency", name).Dur("waited", waited).Msg("still waiting for module")
			}),
		)
		r.futures[name] = f
	}
	return f
}

// register publishes m and resolves its future. A module that started unloading is not registered.
func (r *registry) register(m *Module) bool {
	r.mu.Lock()
	if m.unloaded.Load() {
		r.mu.Unlock()
		return false
	}
	r.modules[m.name] = m
	f := r.futureLocked(m.name)
	if v, ok := f.Value(); ok && v != m {
		delete(r.futures, m.name)
		f = r.futureLocked(m.name)
	}
	r.mu.Unlock()
	f.Resolve(m)
	return true
}

// deregister removes m, retires its resolved future and frees its name.
func (r *registry) deregister(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modules[m.name] == m {
		delete(r.modules, m.name)
	}
	if f, ok := r.futures[m.name]; ok {
		if v, ok := f.Value(); ok && v == m {
			delete(r.futures, m.name)
		}
	}
	if r.claims[m.name] == m {
		delete(r.claims, m.name)
	}
}

func (r *registry) module(name string) *Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modules[name]
}

// snapshot lists the registered modules ordered by name.
func (r *registry) snapshot() []*Module {
	r.mu.Lock()
	ms := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		ms = append(ms, m)
	}
	r.mu.Unlock()
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })
	return ms
}

// enqueue appends fn to the activation queue. It reports false once the queue is closed.
func (r *registry) enqueue(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.queue = append(r.queue, fn)
	return true
}

// close closes the activation queue and hands out what was queued.
func (r *registry) close() ([]func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrActivated
	}
	r.closed = true
	q := r.queue
	r.queue = nil
	return q, nil
}

func (r *registry) activated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
