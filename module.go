package hotwire

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ZenLiuCN/hotwire/image"
	"github.com/ZenLiuCN/hotwire/patch"
	"github.com/rs/zerolog"
)

type (
	// Module is a loaded module: its identity, lifecycle state, the redirections it owns and the
	// modules wired into it.
	Module struct {
		loader  *Loader
		name    string
		version Version
		schema  uint32
		path    string
		img     image.Image
		exports []image.Export
		mk      *marker
		reqs    Requests
		log     zerolog.Logger

		state    atomic.Int32
		pending  atomic.Int32 // unsatisfied hard dependencies plus the setup token
		started  atomic.Bool
		unloaded atomic.Bool
		unloadMu sync.Mutex
		done     chan struct{}

		mu         sync.Mutex
		err        error
		owned      []Patch
		received   []received
		dependents map[*Module]struct{}
		waiting    map[string]func()
		callbacks  []func(*Module)
	}
	// Patch is a redirection owned by a module: the stub of Requester now reaches Target of Provider.
	// Provider is the core provider name for redirections resolved at scan time.
	Patch struct {
		Requester string
		Provider  string
		Origin    string
		Target    string
		Kind      Kind
		record    *patch.Record
	}
	received struct {
		provider *Module
		record   *patch.Record
	}
)

func newModule(l *Loader, path string, img image.Image, meta Metadata, mk *marker, exports []image.Export) *Module {
	m := &Module{
		loader:     l,
		name:       meta.Name,
		version:    meta.Version,
		schema:     meta.Schema,
		path:       path,
		img:        img,
		exports:    exports,
		mk:         mk,
		done:       make(chan struct{}),
		dependents: make(map[*Module]struct{}),
		waiting:    make(map[string]func()),
	}
	m.log = l.log.With().Str("module", m.name).Str("path", path).Logger()
	return m
}

func (m *Module) Name() string {
	return m.name
}

func (m *Module) Version() Version {
	return m.version
}

func (m *Module) Schema() uint32 {
	return m.schema
}

func (m *Module) Path() string {
	return m.path
}

func (m *Module) Image() image.Image {
	return m.img
}

func (m *Module) State() State {
	return State(m.state.Load())
}

// Err is the failure that crashed or failed the module, if any.
func (m *Module) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Dependents are the names of the modules whose stubs are redirected into this module.
func (m *Module) Dependents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.dependents))
	for d := range m.dependents {
		names = append(names, d.name)
	}
	sort.Strings(names)
	return names
}

// Waiting lists the hard dependencies not yet satisfied.
func (m *Module) Waiting() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.waiting))
	for n := range m.waiting {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Patches returns the redirections the module owns.
func (m *Module) Patches() []Patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Patch(nil), m.owned...)
}

// OnUnload registers fn to run when the module unloads. Panics raised by fn are swallowed. A callback
// registered on an unloaded module runs immediately.
func (m *Module) OnUnload(fn func(*Module)) {
	m.mu.Lock()
	if !m.unloaded.Load() {
		m.callbacks = append(m.callbacks, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.notify(fn)
}

// Done is closed when the module has fully unloaded.
func (m *Module) Done() <-chan struct{} {
	return m.done
}

// Active reports whether the redirection is still installed.
func (p Patch) Active() bool {
	return p.record != nil && p.record.Active()
}

func (p Patch) String() string {
	if p.record == nil {
		return p.Origin + " -> " + p.Provider + ":" + p.Target
	}
	return p.record.String()
}

// attach records a redirection into m owned by m. It refuses once m started unloading.
func (m *Module) attach(requester *Module, p Patch) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unloaded.Load() {
		return false
	}
	m.owned = append(m.owned, p)
	if requester != nil && requester != m {
		m.dependents[requester] = struct{}{}
	}
	return true
}

// detach drops the redirections of requester and forgets it as a dependent.
func (m *Module) detach(requester *Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dependents, requester)
	kept := m.owned[:0]
	for _, p := range m.owned {
		if p.Requester != requester.name {
			kept = append(kept, p)
		}
	}
	clear(m.owned[len(kept):])
	m.owned = kept
}

func (m *Module) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
	}
}

// terminate moves a live module into a terminal state. It reports false when already terminal.
func (m *Module) terminate(s State) bool {
	for {
		cur := m.state.Load()
		if State(cur).Terminal() {
			return false
		}
		if m.state.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}

func (m *Module) advance(from, to State) bool {
	return m.state.CompareAndSwap(int32(from), int32(to))
}

func (m *Module) notify(fn func(*Module)) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn().Interface("panic", r).Msg("unload callback panicked")
		}
	}()
	fn(m)
}
