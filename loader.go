package hotwire

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ZenLiuCN/hotwire/future"
	"github.com/ZenLiuCN/hotwire/image"
	"github.com/ZenLiuCN/hotwire/patch"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type (
	// Loader loads modules from a container, wires their dependencies and drives their lifecycle.
	// Loaders are independent of each other.
	Loader struct {
		container   image.Container
		redirector  patch.Redirector
		reg         *registry
		log         zerolog.Logger
		poll        time.Duration
		concurrency int
		observers   observers
	}
	// LoadResult reports a load: the identity parsed so far and the failure, if any.
	LoadResult struct {
		Err     error
		Name    string
		Version Version
		Schema  uint32
		Path    string
	}
	// Option configures a Loader.
	Option func(*Loader)
)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// WithRedirector replaces the patch engine.
func WithRedirector(r patch.Redirector) Option {
	return func(l *Loader) {
		if r != nil {
			l.redirector = r
		}
	}
}

// WithPoll sets the interval after which a blocked Await reports a stall.
func WithPoll(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithConcurrency bounds the parallel fan-outs of scanning, activation and LoadAll.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithObserver subscribes an observer to lifecycle events.
func WithObserver(o Observer) Option {
	return func(l *Loader) {
		l.observers.add(o)
	}
}

// New creates a Loader over container.
func New(container image.Container, opts ...Option) *Loader {
	l := &Loader{
		container:   container,
		redirector:  patch.New(),
		log:         zerolog.Nop(),
		poll:        future.DefaultPoll,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reg = newRegistry(l.poll, l.log)
	return l
}

// Kind classifies the failure.
func (r LoadResult) Kind() ErrorKind {
	return KindOf(r.Err)
}

func (r LoadResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s %s (%s): %s", r.Name, r.Version, r.Path, r.Err)
	}
	return fmt.Sprintf("%s %s (%s)", r.Name, r.Version, r.Path)
}

// Load loads the module at path. It returns once the module is registered; a module waiting on hard
// dependencies stays Loaded and continues when they arrive.
func (l *Loader) Load(path string) LoadResult {
	return l.load(path)
}

// LoadAsync runs Load on its own goroutine.
func (l *Loader) LoadAsync(path string) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	go func() {
		ch <- l.load(path)
	}()
	return ch
}

// LoadAll loads paths in parallel. Results keep the order of paths.
func (l *Loader) LoadAll(paths ...string) []LoadResult {
	out := make([]LoadResult, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(l.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			out[i] = l.load(p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// RegisterCoreProvider publishes a built-in provider. Dependency targets without a type qualifier
// resolve against it: `hard:"name,Member"` finds a method, func field or map entry called Member.
// Providers are sealed once the first module loads.
func (l *Loader) RegisterCoreProvider(name string, provider any) error {
	if name == "" || provider == nil {
		return fmt.Errorf("%w: core provider %q", ErrIllegalIdentifier, name)
	}
	return l.reg.provide(name, provider)
}

// Activate flushes deferred soft wiring, unloads modules whose hard dependencies never arrived and
// starts every initialized module. Modules becoming ready afterwards start on their own.
func (l *Loader) Activate() error {
	queue, err := l.reg.close()
	if err != nil {
		return err
	}
	l.log.Info().Int("deferred", len(queue)).Msg("activating")
	g := new(errgroup.Group)
	g.SetLimit(l.concurrency)
	for _, fn := range queue {
		g.Go(func() error {
			fn()
			return nil
		})
	}
	_ = g.Wait()
	for _, m := range l.reg.snapshot() {
		if m.State() < Initialized {
			m.log.Warn().Strs("waiting", m.Waiting()).Msg("not ready at activation")
			m.Unload()
		}
	}
	g = new(errgroup.Group)
	g.SetLimit(l.concurrency)
	for _, m := range l.reg.snapshot() {
		if m.State() == Initialized {
			g.Go(func() error {
				m.start()
				return nil
			})
		}
	}
	return g.Wait()
}

// Activated reports whether Activate has run.
func (l *Loader) Activated() bool {
	return l.reg.activated()
}

// Module returns the live module called name.
func (l *Loader) Module(name string) (*Module, bool) {
	m := l.reg.module(name)
	return m, m != nil
}

// Modules lists the live modules ordered by name.
func (l *Loader) Modules() []*Module {
	return l.reg.snapshot()
}

// Await blocks until a module called name is registered.
func (l *Loader) Await(name string) *Module {
	return l.reg.futureOf(name).Wait()
}

// AwaitContext is Await bounded by ctx.
func (l *Loader) AwaitContext(ctx context.Context, name string) (*Module, error) {
	return l.reg.futureOf(name).WaitContext(ctx)
}

// Unload unloads the module called name with everything depending on it and waits for completion.
func (l *Loader) Unload(name string) error {
	m := l.reg.module(name)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	m.Unload()
	<-m.Done()
	return nil
}

// Close unloads every live module. The loader stays usable.
func (l *Loader) Close() error {
	var wg sync.WaitGroup
	for _, m := range l.reg.snapshot() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Unload()
			<-m.Done()
		}()
	}
	wg.Wait()
	return nil
}

// Subscribe registers an observer for lifecycle events. Observers are identified by ObserverID.
func (l *Loader) Subscribe(o Observer) {
	l.observers.add(o)
}

// Unsubscribe removes the observer with the given id.
func (l *Loader) Unsubscribe(id string) {
	l.observers.remove(id)
}

func (l *Loader) emit(eventType string, m *Module) {
	obs := l.observers.snapshot()
	if len(obs) == 0 {
		return
	}
	e := NewEvent(eventType, m)
	for _, o := range obs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.Warn().Str("observer", o.ObserverID()).Interface("panic", r).Str("event", eventType).Msg("observer panicked")
				}
			}()
			if err := o.OnEvent(context.Background(), e); err != nil {
				l.log.Warn().Err(err).Str("observer", o.ObserverID()).Str("event", eventType).Msg("observer failed")
			}
		}()
	}
}
