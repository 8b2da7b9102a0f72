package hotwire

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ZenLiuCN/hotwire/image"
	"github.com/ZenLiuCN/hotwire/patch"
	"golang.org/x/sync/errgroup"
)

// Kind of a dependency request.
type Kind uint8

const (
	// Hard dependencies block initialization until satisfied.
	Hard Kind = iota
	// Soft dependencies are wired best effort during activation.
	Soft
)

const (
	tagHard = "hard"
	tagSoft = "soft"
)

func (k Kind) String() string {
	if k == Soft {
		return tagSoft
	}
	return tagHard
}

type (
	// Request is one stub function asking for a function of another module.
	Request struct {
		Module string // providing module or core provider name
		Target string // declared target, Type.Member or Member for core providers
		Type   string
		Member string
		Origin string // export and field of the stub
		Kind   Kind
		Stub   patch.Slot
	}
	// Binding is a request already resolved against a core provider.
	Binding struct {
		Request
		Impl reflect.Value
	}
	// Requests are the dependency declarations of one module, keyed by module name.
	Requests struct {
		Hard map[string][]Request
		Soft map[string][]Request
		Core []Binding
	}
	// Providers looks up a core provider by name.
	Providers func(name string) (any, bool)
)

// Scan walks the exported struct values of a module and collects the dependency markers declared on
// their function fields. Markers are struct tags:
//
//	Print func(...any) `hard:"console,Console.Print"`
//	Trace func(string) `soft:"tracer,Tracer.Emit"`
//
// Only the first well-formed hard or soft marker of a field counts. A target without a '.' names a
// member of the core provider called like the module; it is resolved here, immediately.
func Scan(exports []image.Export, providers Providers, limit int) (r Requests, err error) {
	type job struct {
		class  reflect.Value
		export string
		index  int
	}
	var jobs []job
	for _, e := range exports {
		v := reflect.ValueOf(e.Value)
		if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
			continue
		}
		c := v.Elem()
		for i := 0; i < c.NumField(); i++ {
			jobs = append(jobs, job{class: c, export: e.Name, index: i})
		}
	}
	r = Requests{Hard: make(map[string][]Request), Soft: make(map[string][]Request)}
	var mu sync.Mutex
	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, j := range jobs {
		g.Go(func() error {
			req, ok, err := scanField(j.class, j.export, j.index)
			if err != nil || !ok {
				return err
			}
			if req.Type == "" {
				b, ok, err := bindCore(req, providers)
				if err != nil || !ok {
					return err
				}
				mu.Lock()
				r.Core = append(r.Core, b)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			if req.Kind == Hard {
				r.Hard[req.Module] = append(r.Hard[req.Module], req)
			} else {
				r.Soft[req.Module] = append(r.Soft[req.Module], req)
			}
			mu.Unlock()
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return
	}
	for _, m := range []map[string][]Request{r.Hard, r.Soft} {
		for _, x := range m {
			sort.Slice(x, func(i, j int) bool { return x[i].Origin < x[j].Origin })
		}
	}
	sort.Slice(r.Core, func(i, j int) bool { return r.Core[i].Origin < r.Core[j].Origin })
	return
}

func scanField(class reflect.Value, export string, index int) (req Request, ok bool, err error) {
	f := class.Type().Field(index)
	if !f.IsExported() || f.Type.Kind() != reflect.Func || f.Tag == "" {
		return
	}
	var module, target string
	if req.Kind, module, target, ok = firstMarker(f.Tag); !ok {
		return
	}
	origin := export + "." + f.Name
	stub, err := patch.Field(class, index)
	if err != nil {
		return req, false, fmt.Errorf("%w: %s: %w", ErrPatchFailure, origin, err)
	}
	req.Module, req.Target, req.Origin, req.Stub = module, target, origin, stub.Named(origin)
	req.Type, req.Member = splitTarget(target)
	return
}

func bindCore(req Request, providers Providers) (b Binding, ok bool, err error) {
	var p any
	if providers != nil {
		p, ok = providers(req.Module)
	}
	if ok {
		b.Impl, ok = lookupMember(reflect.ValueOf(p), req.Member)
	}
	if !ok {
		if req.Kind == Hard {
			err = fmt.Errorf("%w: %s requires %s from core provider %q", ErrMissingTarget, req.Origin, req.Member, req.Module)
		}
		return
	}
	b.Request = req
	return
}

// firstMarker returns the first well-formed hard or soft marker of a struct tag, in tag order.
func firstMarker(tag reflect.StructTag) (kind Kind, module, target string, ok bool) {
	s := string(tag)
	for s != "" {
		i := 0
		for i < len(s) && s[i] == ' ' {
			i++
		}
		s = s[i:]
		if s == "" {
			break
		}
		i = 0
		for i < len(s) && s[i] > ' ' && s[i] != ':' && s[i] != '"' && s[i] != 0x7f {
			i++
		}
		if i == 0 || i+1 >= len(s) || s[i] != ':' || s[i+1] != '"' {
			break
		}
		key := s[:i]
		s = s[i+1:]
		i = 1
		for i < len(s) && s[i] != '"' {
			if s[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(s) {
			break
		}
		raw := s[:i+1]
		s = s[i+1:]
		if key != tagHard && key != tagSoft {
			continue
		}
		value, err := strconv.Unquote(raw)
		if err != nil {
			continue
		}
		module, target, found := strings.Cut(value, ",")
		module, target = strings.TrimSpace(module), strings.TrimSpace(target)
		if !found || module == "" || target == "" {
			continue
		}
		if key == tagSoft {
			kind = Soft
		}
		return kind, module, target, true
	}
	return
}

// splitTarget splits at the last '.'; a target with no qualifying type is a core provider member.
func splitTarget(target string) (typ, member string) {
	if i := strings.LastIndexByte(target, '.'); i > 0 {
		return target[:i], target[i+1:]
	}
	return "", target
}

// lookupMember finds a callable member: a method, a non-nil func field or a func stored in a
// string keyed map.
func lookupMember(v reflect.Value, name string) (reflect.Value, bool) {
	if !v.IsValid() || name == "" {
		return reflect.Value{}, false
	}
	if m := v.MethodByName(name); m.IsValid() {
		return m, true
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	var f reflect.Value
	switch v.Kind() {
	case reflect.Struct:
		f = v.FieldByName(name)
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			f = v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		}
	}
	for f.IsValid() && f.Kind() == reflect.Interface && !f.IsNil() {
		f = f.Elem()
	}
	if !f.IsValid() || f.Kind() != reflect.Func || f.IsNil() || !f.CanInterface() {
		return reflect.Value{}, false
	}
	return f, true
}

// findExport locates the export serving as qualifying type: exact name first, then a unique export
// whose unqualified name matches.
func findExport(exports []image.Export, typ string) (image.Export, bool) {
	for _, e := range exports {
		if e.Name == typ {
			return e, true
		}
	}
	var found image.Export
	n := 0
	for _, e := range exports {
		if e.Simple() == typ || strings.HasSuffix(e.Name, "."+typ) {
			found = e
			n++
		}
	}
	return found, n == 1
}
