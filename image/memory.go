package image

import (
	"fmt"
	"sync"
)

type (
	// Memory is a container of modules compiled into the host process. Each Load calls the registered
	// factory, so every load gets fresh export values. Release cannot free code; it only detaches the
	// image.
	Memory struct {
		mu        sync.RWMutex
		factories map[string]func() map[string]any
	}
	memoryImage struct {
		Releaser
		path    string
		exports Exports
	}
)

// NewMemory creates an empty in-process container.
func NewMemory() *Memory {
	return &Memory{factories: make(map[string]func() map[string]any)}
}

// Add makes path loadable. factory returns the export table, keyed by qualified name.
func (c *Memory) Add(path string, factory func() map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[path] = factory
}

// Remove makes path unloadable. Images already loaded are not affected.
func (c *Memory) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.factories, path)
}

func (c *Memory) Load(path string) (Image, error) {
	c.mu.RLock()
	f, ok := c.factories[path]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return &memoryImage{path: path, exports: FromMap(f())}, nil
}

func (m *memoryImage) Path() string {
	return m.path
}

func (m *memoryImage) Exports() ([]Export, error) {
	if m.Released() {
		return nil, ErrReleased
	}
	return m.exports, nil
}

func (m *memoryImage) Release() error {
	m.Fire()
	return nil
}
