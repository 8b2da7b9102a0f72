package hotwire

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ZenLiuCN/hotwire/image"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

// load runs a module from image to registration. A module whose hard dependencies are all live
// initializes before it is published. Failures after the module got a descriptor unload it and are
// also kept on the descriptor.
func (l *Loader) load(path string) (res LoadResult) {
	res.Path = path
	img, err := l.container.Load(path)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", ErrImageLoad, path, err)
		return
	}
	exports, err := img.Exports()
	if err != nil {
		l.discard(img)
		res.Err = fmt.Errorf("%w: %s: %w", ErrImageLoad, path, err)
		return
	}
	meta, mk, err := readMetadata(exports)
	res.Name, res.Version, res.Schema = meta.Name, meta.Version, meta.Schema
	if err != nil {
		l.discard(img)
		res.Err = err
		return
	}
	l.log.Trace().Str("path", path).Func(func(e *zerolog.Event) {
		e.Str("metadata", spew.Sdump(meta))
	}).Msg("module metadata")
	m := newModule(l, path, img, meta, mk, exports)
	if err = l.reg.claim(m); err != nil {
		l.discard(img)
		res.Err = err
		return
	}
	img.OnRelease(m.Unload)

	if err = lookupHook(mk, hookLoad).call(); err != nil {
		m.abort(Crashed, err)
		res.Err = err
		return
	}
	m.advance(Awaiting, Loaded)
	m.log.Debug().Strs("hooks", declaredHooks(mk)).Msg("loaded")

	if m.reqs, err = Scan(exports, l.reg.provider, l.concurrency); err != nil {
		m.abort(Failed, err)
		res.Err = err
		return
	}
	if err = m.bindCore(); err != nil {
		m.abort(Failed, err)
		res.Err = err
		return
	}

	m.pending.Store(int32(len(m.reqs.Hard)) + 1)
	m.mu.Lock()
	for name := range m.reqs.Hard {
		m.waiting[name] = nil
	}
	m.mu.Unlock()
	for name, reqs := range m.reqs.Hard {
		if m.unloaded.Load() {
			break
		}
		cancel := l.reg.futureOf(name).Subscribe(func(p *Module) {
			m.satisfy(p, reqs)
		})
		m.mu.Lock()
		fn, ok := m.waiting[name]
		if ok && fn == nil {
			m.waiting[name] = cancel
		}
		m.mu.Unlock()
		if !ok && m.unloaded.Load() {
			cancel()
		}
	}
	m.release()
	if l.reg.register(m) {
		m.log.Info().Stringer("version", m.version).Strs("waiting", m.Waiting()).Msg("registered")
		l.emit(EventTypeRegistered, m)
		// Activate only sees registered modules; one that got ready meanwhile starts here.
		if l.reg.activated() {
			m.start()
		}
	}
	res.Err = m.Err()
	return
}

func (l *Loader) discard(img image.Image) {
	if err := img.Release(); err != nil {
		l.log.Warn().Err(err).Msg("release image")
	}
}

// bindCore installs the redirections resolved against core providers. The requester owns them.
func (m *Module) bindCore() error {
	for _, b := range m.reqs.Core {
		rec, err := m.loader.redirector.Install(b.Stub, b.Impl)
		if err != nil {
			return fmt.Errorf("%w: %s -> %s:%s: %w", ErrPatchFailure, b.Origin, b.Module, b.Member, err)
		}
		m.attach(nil, Patch{Requester: m.name, Provider: b.Module, Origin: b.Origin, Target: b.Target, Kind: b.Kind, record: rec})
		m.log.Debug().Str("stub", b.Origin).Str("provider", b.Module).Str("target", b.Member).Msg("core dependency bound")
	}
	return nil
}

// satisfy wires the hard requests against p once its future resolved.
func (m *Module) satisfy(p *Module, reqs []Request) {
	if m.unloaded.Load() {
		return
	}
	for _, r := range reqs {
		if err := m.wire(p, r); errors.Is(err, errUnloading) {
			return
		} else if err != nil {
			m.abort(Failed, err)
			return
		}
	}
	m.mu.Lock()
	delete(m.waiting, p.name)
	m.mu.Unlock()
	m.release()
}

// wire redirects the stub of r into the provider, which takes ownership of the record. It holds the
// unload lock of m, so the stub is never written once m's image is released.
func (m *Module) wire(p *Module, r Request) error {
	m.unloadMu.Lock()
	defer m.unloadMu.Unlock()
	if m.unloaded.Load() {
		return errUnloading
	}
	e, ok := findExport(p.exports, r.Type)
	if !ok {
		return fmt.Errorf("%w: %s has no type %s required by %s", ErrMissingTarget, p.name, r.Type, r.Origin)
	}
	impl, ok := lookupMember(reflect.ValueOf(e.Value), r.Member)
	if !ok {
		return fmt.Errorf("%w: %s has no %s.%s required by %s", ErrMissingTarget, p.name, r.Type, r.Member, r.Origin)
	}
	red := m.loader.redirector
	rec, err := red.Install(r.Stub, impl)
	if err != nil {
		return fmt.Errorf("%w: %s -> %s:%s: %w", ErrPatchFailure, r.Origin, p.name, r.Target, err)
	}
	if !p.attach(m, Patch{Requester: m.name, Provider: p.name, Origin: r.Origin, Target: r.Target, Kind: r.Kind, record: rec}) {
		red.Revert(rec)
		return fmt.Errorf("%w: %s is unloading", ErrMissingTarget, p.name)
	}
	m.mu.Lock()
	m.received = append(m.received, received{provider: p, record: rec})
	m.mu.Unlock()
	m.log.Debug().Str("stub", r.Origin).Str("provider", p.name).Str("target", r.Target).Stringer("kind", r.Kind).Msg("redirected")
	return nil
}

// release drops one pending count; the caller reaching zero makes the module ready.
func (m *Module) release() {
	if m.pending.Add(-1) == 0 {
		m.ready()
	}
}

// ready runs once every hard dependency is wired. Soft wiring and Init wait for activation while the
// queue is open.
func (m *Module) ready() {
	if len(m.reqs.Soft) == 0 {
		if m.init() && m.loader.reg.activated() {
			m.start()
		}
		return
	}
	run := func() {
		if m.unloaded.Load() {
			return
		}
		m.wireSoft()
		m.init()
	}
	if m.loader.reg.enqueue(run) {
		m.log.Debug().Msg("soft dependencies deferred to activation")
		return
	}
	run()
	m.start()
}

// wireSoft wires every soft request whose provider is live. Failures only skip the request.
func (m *Module) wireSoft() {
	for name, reqs := range m.reqs.Soft {
		p := m.loader.reg.module(name)
		if p == nil {
			m.log.Debug().Str("dependency", name).Msg("soft dependency absent")
			continue
		}
		for _, r := range reqs {
			if err := m.wire(p, r); errors.Is(err, errUnloading) {
				return
			} else if err != nil {
				m.log.Warn().Err(err).Str("stub", r.Origin).Msg("soft dependency skipped")
			}
		}
	}
}

func (m *Module) init() bool {
	if m.unloaded.Load() || m.State() != Loaded {
		return false
	}
	if err := lookupHook(m.mk, hookInit).call(); err != nil {
		m.abort(Crashed, err)
		return false
	}
	if !m.advance(Loaded, Initialized) {
		return false
	}
	m.log.Info().Msg("initialized")
	m.loader.emit(EventTypeInitialized, m)
	return true
}

// start runs the Start hook at most once, on an initialized module.
func (m *Module) start() {
	if m.unloaded.Load() || m.State() != Initialized || !m.started.CompareAndSwap(false, true) {
		return
	}
	if err := lookupHook(m.mk, hookStart).call(); err != nil {
		m.abort(Crashed, err)
		return
	}
	if m.advance(Initialized, Started) {
		m.log.Info().Msg("started")
		m.loader.emit(EventTypeStarted, m)
	}
}

// abort records err, moves the module to s and unloads it.
func (m *Module) abort(s State, err error) {
	m.setErr(err)
	if m.terminate(s) {
		lvl := zerolog.ErrorLevel
		if s == Failed {
			lvl = zerolog.WarnLevel
		}
		m.log.WithLevel(lvl).Err(err).Stringer("state", s).Msg("module aborted")
	}
	m.Unload()
}

// Unload tears the module down. It is idempotent; a call racing an unload in progress returns
// without waiting, see Done.
func (m *Module) Unload() {
	if m.unloaded.Load() {
		return
	}
	m.unloadMu.Lock()
	defer m.unloadMu.Unlock()
	if !m.unloaded.CompareAndSwap(false, true) {
		return
	}
	defer close(m.done)
	l := m.loader

	m.mu.Lock()
	waiting := m.waiting
	m.waiting = make(map[string]func())
	callbacks := m.callbacks
	m.callbacks = nil
	m.mu.Unlock()
	for _, cancel := range waiting {
		if cancel != nil {
			cancel()
		}
	}
	if len(waiting) > 0 && m.terminate(Failed) {
		deps := make([]string, 0, len(waiting))
		for n := range waiting {
			deps = append(deps, n)
		}
		sort.Strings(deps)
		m.setErr(fmt.Errorf("%w: unresolved hard dependencies %v", ErrMissingTarget, deps))
	}
	m.terminate(Stopped)

	for _, fn := range callbacks {
		m.notify(fn)
	}
	switch m.State() {
	case Crashed:
		l.emit(EventTypeCrashed, m)
	case Failed:
		l.emit(EventTypeFailed, m)
	default:
		l.emit(EventTypeStopped, m)
	}
	l.reg.deregister(m)

	m.mu.Lock()
	deps := make([]*Module, 0, len(m.dependents))
	for d := range m.dependents {
		deps = append(deps, d)
	}
	m.dependents = make(map[*Module]struct{})
	owned := m.owned
	m.owned = nil
	m.mu.Unlock()
	if len(deps) > 0 {
		var wg sync.WaitGroup
		for _, d := range deps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.log.Debug().Str("provider", m.name).Msg("provider unloading")
				d.Unload()
			}()
		}
		wg.Wait()
	}
	for _, p := range owned {
		l.redirector.Revert(p.record)
	}

	m.mu.Lock()
	recv := m.received
	m.received = nil
	m.mu.Unlock()
	for _, r := range recv {
		if r.provider != m {
			r.provider.detach(m)
		}
		l.redirector.Revert(r.record)
	}

	if err := m.img.Release(); err != nil {
		m.log.Warn().Err(err).Msg("release image")
	}
	m.log.Info().Stringer("state", m.State()).Msg("unloaded")
}
