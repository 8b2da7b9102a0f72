// Package image defines the isolation container a module is loaded from, plus an in-process container.
//
// A Container turns a path into an Image: an addressable unit of module code exposing a table of
// exported values. Releasing an Image frees the module's code; every callback registered with
// OnRelease runs synchronously, exactly once, before Release returns.
package image

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound occurs when a container has nothing to load at a path.
	ErrNotFound = errors.New("module image not found")
	// ErrReleased occurs when a released image is used.
	ErrReleased = errors.New("module image released")
)

type (
	// Container loads module images.
	Container interface {
		Load(path string) (Image, error)
	}
	// Image is a loaded, unloadable unit of module code.
	Image interface {
		Path() string
		Exports() ([]Export, error)
		OnRelease(fn func())
		Release() error
	}
	// Export is one named value published by a module. Values are pointers so the loader can patch
	// function fields in place.
	Export struct {
		Name  string
		Value any
	}
	// Exports is a sortable export table.
	Exports []Export
)

// Simple is the export name without its package qualifier.
func (e Export) Simple() string {
	if i := strings.LastIndexByte(e.Name, '.'); i >= 0 {
		return e.Name[i+1:]
	}
	return e.Name
}

// FromMap builds a name ordered export table.
func FromMap(m map[string]any) Exports {
	x := make(Exports, 0, len(m))
	for k, v := range m {
		x = append(x, Export{Name: k, Value: v})
	}
	sort.Sort(x)
	return x
}

func (x Exports) Len() int           { return len(x) }
func (x Exports) Less(i, j int) bool { return x[i].Name < x[j].Name }
func (x Exports) Swap(i, j int)      { x[i], x[j] = x[j], x[i] }

// Releaser runs release callbacks once. Containers embed it in their images.
type Releaser struct {
	mu       sync.Mutex
	released bool
	fns      []func()
}

// OnRelease registers fn. A callback registered after release runs immediately.
func (r *Releaser) OnRelease(fn func()) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		fn()
		return
	}
	r.fns = append(r.fns, fn)
	r.mu.Unlock()
}

// Fire marks the releaser released and runs the callbacks. It reports false when already fired.
func (r *Releaser) Fire() bool {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return false
	}
	r.released = true
	fns := r.fns
	r.fns = nil
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return true
}

// Released reports whether Fire has run.
func (r *Releaser) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
