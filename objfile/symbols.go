package objfile

import (
	"errors"
	"maps"
	"strings"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/pkujhd/goloader"
)

var (
	// ErrMissingSymbol occurs when a symbol can not be found.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrAlreadyLoaded occurs when the same file or package is loaded twice.
	ErrAlreadyLoaded = errors.New("object already loaded")
	// ErrUnsupported occurs when the file extension is not an object, archive or linkable.
	ErrUnsupported = errors.New("unsupported object file")
	// ErrUnresolved occurs when an object references symbols nothing provides.
	ErrUnresolved = errors.New("unresolved symbols")
	// ErrNoExports occurs when a loaded object has no Exports function.
	ErrNoExports = errors.New("object has no Exports function")
	// ErrPanicked occurs when code of a loaded object panics.
	ErrPanicked = errors.New("object code panicked")
)

// Symbols is a symbol table shared by the objects of one container: the host runtime symbols plus
// every symbol an object contributed. Later objects link against earlier ones through it.
type Symbols struct {
	mu    sync.RWMutex
	host  map[string]uintptr
	table map[string]uintptr
	owner map[string]*Object
}

// NewSymbols registers the runtime symbols of the host executable.
func NewSymbols() (s *Symbols, err error) {
	s = &Symbols{host: make(map[string]uintptr), owner: make(map[string]*Object)}
	if err = goloader.RegSymbol(s.host); err != nil {
		return nil, err
	}
	s.table = maps.Clone(s.host)
	return
}

// RegisterSo adds the symbols of a shared library.
func (s *Symbols) RegisterSo(path string) error {
	return s.addHost(func(m map[string]uintptr) error { return goloader.RegSymbolWithSo(m, path) })
}

// RegisterExecutable adds the symbols of an executable, for a host that is not the running binary.
func (s *Symbols) RegisterExecutable(path string) error {
	return s.addHost(func(m map[string]uintptr) error { return goloader.RegSymbolWithPath(m, path) })
}

// RegisterTypes makes the types of the given values linkable, for interfaces shared with modules.
func (s *Symbols) RegisterTypes(types ...any) {
	_ = s.addHost(func(m map[string]uintptr) error {
		goloader.RegTypes(m, types...)
		return nil
	})
}

func (s *Symbols) addHost(reg func(map[string]uintptr) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := make(map[string]uintptr)
	if err := reg(added); err != nil {
		return err
	}
	for k, v := range added {
		if _, ok := s.host[k]; !ok {
			s.host[k] = v
			s.table[k] = v
		}
	}
	return nil
}

// Names lists the resolvable symbols.
func (s *Symbols) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn.MapKeys(s.table)
}

// Lookup resolves a symbol. A name without package qualifier is looked up in package main.
func (s *Symbols) Lookup(name string) (uintptr, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.table[qualify(name)]
	return p, ok
}

// snapshot copies the table for linking; goloader writes into the map it links with.
func (s *Symbols) snapshot() map[string]uintptr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.table)
}

// unresolved lists the symbols of linker nothing in the table provides.
func (s *Symbols) unresolved(linker *goloader.Linker) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return goloader.UnresolvedSymbols(linker, s.table)
}

// providers returns the objects whose contributed symbols linker needs.
func (s *Symbols) providers(linker *goloader.Linker) []*Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[*Object]struct{})
	var out []*Object
	for _, name := range goloader.UnresolvedSymbols(linker, s.host) {
		if o, ok := s.owner[name]; ok {
			if _, dup := seen[o]; !dup {
				seen[o] = struct{}{}
				out = append(out, o)
			}
		}
	}
	return out
}

// contribute publishes the symbols of a linked object. Existing symbols are kept.
func (s *Symbols) contribute(o *Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, p := range o.module.Syms {
		if _, ok := s.table[name]; ok {
			continue
		}
		s.table[name] = p
		s.owner[name] = o
	}
}

// withdraw removes what o contributed.
func (s *Symbols) withdraw(o *Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, x := range s.owner {
		if x == o {
			delete(s.owner, name)
			delete(s.table, name)
		}
	}
}

func qualify(sym string) string {
	if strings.IndexByte(sym, '.') < 0 {
		return "main." + sym
	}
	return sym
}
