/*
Package objfile is a module container based on [goloader], a runtime linker for go object files.

# Underwater

 1. Object files (.o), archives (.a) and serialized linkables (.linkable) are linked at runtime into
    executable memory, as JIT solutions do, and unlinked again on release.
 2. Every container owns one symbol table. Symbols of a loaded object join the table, so objects loaded
    later can link against it; releasing an object releases those dependents first.
 3. Symbols an object misses are searched in its private dependency directory: for a module file
    dir/name.o that is dir/name/, whose object files are linked together with the module.
 4. A module object publishes its exports through a function of its package:

	func Exports() map[string]any

# Notes

 1. The host executable must be built from a go sdk prepared for goloader, see the toolchain package.
 2. Only exported functions and variables can be linked.
 3. Types shared between host and modules must be registered with [WithTypes] before loading.

[goloader]: https://github.com/pkujhd/goloader
*/
package objfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ZenLiuCN/fn"
	"github.com/ZenLiuCN/hotwire/image"
	"github.com/pkujhd/goloader"
	"github.com/rs/zerolog"
)

// File extensions the container loads.
const (
	ExtObject   = ".o"
	ExtArchive  = ".a"
	ExtLinkable = ".linkable"
)

type (
	// Container loads goloader modules as images.
	Container struct {
		symbols  *Symbols
		log      zerolog.Logger
		debug    bool
		sync     bool
		mu       sync.Mutex
		objects  map[string]*Object
		packages map[string]*Object
		aliases  map[string]string
	}
	// Option configures a Container.
	Option func(*Container) error
)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Container) error {
		c.log = log
		return nil
	}
}

// WithDebug logs linking details.
func WithDebug(debug bool) Option {
	return func(c *Container) error {
		c.debug = debug
		return nil
	}
}

// WithSyncStdout flushes stdout before unlinking code, which may still own buffered output.
func WithSyncStdout(sync bool) Option {
	return func(c *Container) error {
		c.sync = sync
		return nil
	}
}

// WithSo adds the symbols of a shared library.
func WithSo(path string) Option {
	return func(c *Container) error {
		return c.symbols.RegisterSo(path)
	}
}

// WithExecutable adds the symbols of an executable.
func WithExecutable(path string) Option {
	return func(c *Container) error {
		return c.symbols.RegisterExecutable(path)
	}
}

// WithTypes registers types shared with modules.
func WithTypes(types ...any) Option {
	return func(c *Container) error {
		c.symbols.RegisterTypes(types...)
		return nil
	}
}

// New creates a container linking against the symbols of the running executable.
func New(opts ...Option) (c *Container, err error) {
	c = &Container{
		log:      zerolog.Nop(),
		objects:  make(map[string]*Object),
		packages: make(map[string]*Object),
		aliases:  make(map[string]string),
	}
	if c.symbols, err = NewSymbols(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err = opt(c); err != nil {
			return nil, err
		}
	}
	return
}

// Symbols is the shared symbol table.
func (c *Container) Symbols() *Symbols {
	return c.symbols
}

// Bind sets the package path of the object file at path. Unbound files use their file stem.
func (c *Container) Bind(path, pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[path] = pkg
}

// Object returns the live object loaded from path.
func (c *Container) Object(path string) (*Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[path]
	return o, ok
}

// Objects lists the live objects ordered by path.
func (c *Container) Objects() []*Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Object, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// Load implements [image.Container].
func (c *Container) Load(path string) (image.Image, error) {
	o, err := c.Open(path)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Open links the module file at path.
func (c *Container) Open(path string) (o *Object, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[path]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, path)
	}
	o = &Object{c: c, path: path, log: c.log.With().Str("object", path).Logger()}
	if err = c.read(o); err != nil {
		return nil, err
	}
	for _, pkg := range o.pkgs {
		if x, ok := c.packages[pkg]; ok {
			return nil, fmt.Errorf("%w: package %s from %s", ErrAlreadyLoaded, pkg, x.path)
		}
	}
	if missing := c.symbols.unresolved(o.linker); len(missing) > 0 {
		if err = c.private(o, missing); err != nil {
			return nil, err
		}
	}
	deps := c.symbols.providers(o.linker)
	if o.module, err = goloader.Load(o.linker, c.symbols.snapshot()); err != nil {
		return nil, err
	}
	if c.debug {
		o.log.Debug().Strs("packages", o.pkgs).Strs("files", o.files).Int("symbols", len(o.module.Syms)).Msg("linked")
	}
	c.symbols.contribute(o)
	for _, d := range deps {
		d.depend(o)
	}
	c.objects[path] = o
	for _, pkg := range o.pkgs {
		c.packages[pkg] = o
	}
	return
}

func (c *Container) read(o *Object) (err error) {
	switch filepath.Ext(o.path) {
	case ExtLinkable:
		var f *os.File
		if f, err = os.Open(o.path); err != nil {
			return
		}
		defer fn.IgnoreClose(f)
		if o.linker, err = goloader.UnSerialize(f); err != nil {
			return
		}
		for _, pkg := range o.linker.Packages {
			o.files = append(o.files, pkg.File)
			o.pkgs = append(o.pkgs, pkg.PkgPath)
		}
	case ExtObject, ExtArchive:
		pkg, ok := c.aliases[o.path]
		if !ok {
			pkg = stem(o.path)
		}
		o.files, o.pkgs = []string{o.path}, []string{pkg}
		o.linker, err = goloader.ReadObj(o.path, pkg)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupported, o.path)
	}
	return
}

// private relinks o together with the files of its private dependency directory defining missing
// symbols.
func (c *Container) private(o *Object, missing []string) (err error) {
	if filepath.Ext(o.path) == ExtLinkable {
		return fmt.Errorf("%w: %s: %s", ErrUnresolved, o.path, brief(missing))
	}
	files, pkgs, err := ResolveMissing(o.path, missing)
	if err != nil {
		return
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: %s: %s", ErrUnresolved, o.path, brief(missing))
	}
	if c.debug {
		o.log.Debug().Strs("files", files).Msg("private dependencies")
	}
	o.files = append(o.files, files...)
	o.pkgs = append(o.pkgs, pkgs...)
	if o.linker, err = goloader.ReadObjs(o.files, o.pkgs); err != nil {
		return
	}
	if missing = c.symbols.unresolved(o.linker); len(missing) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrUnresolved, o.path, brief(missing))
	}
	return
}

func (c *Container) forget(o *Object) {
	c.symbols.withdraw(o)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects[o.path] == o {
		delete(c.objects, o.path)
	}
	for _, pkg := range o.pkgs {
		if c.packages[pkg] == o {
			delete(c.packages, pkg)
		}
	}
}

// Close releases every object, the latest loaded first.
func (c *Container) Close() error {
	objs := c.Objects()
	for i := len(objs) - 1; i >= 0; i-- {
		_ = objs[i].Release()
	}
	return nil
}

// ResolveMissing searches the private dependency directory of the module file at path, dir/stem/, for
// object files and archives defining any of the missing symbols. Each file's package path is its stem.
func ResolveMissing(path string, missing []string) (files, pkgs []string, err error) {
	dir := filepath.Join(filepath.Dir(path), stem(path))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	want := make(map[string]struct{}, len(missing))
	for _, m := range missing {
		want[m] = struct{}{}
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ExtObject && ext != ExtArchive) {
			continue
		}
		file := filepath.Join(dir, e.Name())
		pkg := stem(file)
		var syms []string
		if syms, err = goloader.Parse(file, pkg); err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", file, err)
		}
		for _, s := range syms {
			if _, ok := want[s]; ok {
				files = append(files, file)
				pkgs = append(pkgs, pkg)
				break
			}
		}
	}
	return
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func brief(names []string) string {
	const max = 8
	if len(names) > max {
		return strings.Join(names[:max], ", ") + fmt.Sprintf(" and %d more", len(names)-max)
	}
	return strings.Join(names, ", ")
}
