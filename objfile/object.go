package objfile

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ZenLiuCN/hotwire/image"
	"github.com/pkujhd/goloader"
	"github.com/rs/zerolog"
)

// ExportsSymbol is the function every module object defines to publish its export table:
//
//	func Exports() map[string]any
const ExportsSymbol = "Exports"

// Object is one linked module: object files, an archive or a serialized linkable, loaded into
// executable memory. It is an [image.Image].
//
// Note:
//
//  1. Code of an object must not be called after Release.
//  2. Objects loaded later may link against symbols of this object; releasing it releases them first.
type Object struct {
	image.Releaser
	c       *Container
	path    string
	files   []string
	pkgs    []string
	linker  *goloader.Linker
	module  *goloader.CodeModule
	log     zerolog.Logger
	once    sync.Once
	exports image.Exports
	err     error

	mu         sync.Mutex
	dependents []*Object
}

func (o *Object) Path() string {
	return o.path
}

// Packages are the package paths linked into the object.
func (o *Object) Packages() []string {
	return o.pkgs
}

// Files are the object files linked, the module first, then private dependencies.
func (o *Object) Files() []string {
	return o.files
}

// Linker exposes the goloader linker, nil after release.
func (o *Object) Linker() *goloader.Linker {
	return o.linker
}

// Fetch resolves a symbol of this object. A name without package qualifier is looked up in main.
func (o *Object) Fetch(sym string) (uintptr, bool) {
	if o.module == nil {
		return 0, false
	}
	p, ok := o.module.Syms[qualify(sym)]
	if ok && o.c.debug {
		o.log.Debug().Str("symbol", sym).Str("address", fmt.Sprintf("%x", p)).Msg("found symbol")
	}
	return p, ok
}

// Exports calls the Exports function of the module package once and returns its table.
func (o *Object) Exports() ([]image.Export, error) {
	if o.Released() {
		return nil, image.ErrReleased
	}
	o.once.Do(func() {
		var addr uintptr
		var ok bool
		for _, pkg := range o.pkgs {
			if addr, ok = o.Fetch(pkg + "." + ExportsSymbol); ok {
				break
			}
		}
		if !ok {
			o.err = fmt.Errorf("%w: %s", ErrNoExports, o.path)
			return
		}
		o.err = Use(addr, func(f func() map[string]any) error {
			o.exports = image.FromMap(f())
			return nil
		})
	})
	return o.exports, o.err
}

// Serialize writes the linker in the linkable format, loadable later without the object files.
func (o *Object) Serialize(out io.Writer) error {
	if o.linker == nil {
		return image.ErrReleased
	}
	return goloader.Serialize(o.linker, out)
}

// Release unloads the object. Release callbacks and dependent objects go first, the code last.
func (o *Object) Release() error {
	if !o.Fire() {
		return nil
	}
	o.mu.Lock()
	deps := o.dependents
	o.dependents = nil
	o.mu.Unlock()
	for i := len(deps) - 1; i >= 0; i-- {
		_ = deps[i].Release()
	}
	o.c.forget(o)
	if o.c.debug {
		o.log.Debug().Msg("free object")
	}
	if o.c.sync {
		_ = os.Stdout.Sync()
	}
	o.module.Unload()
	o.module = nil
	o.linker = nil
	return nil
}

func (o *Object) depend(d *Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dependents = append(o.dependents, d)
}
