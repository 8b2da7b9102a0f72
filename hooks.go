package hotwire

import (
	"fmt"
	"reflect"
)

const (
	hookLoad  = "Load"
	hookInit  = "Init"
	hookStart = "Start"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// hook is an optional parameterless lifecycle function declared on the ModuleInfo surface, either as
// a method or as a func field. Accepted shapes are func() and func() error.
type hook struct {
	name string
	fn   reflect.Value
}

func lookupHook(mk *marker, name string) hook {
	h := hook{name: name}
	if m := mk.value.MethodByName(name); m.IsValid() {
		h.fn = m
		return h
	}
	if mk.fields.CanAddr() {
		if m := mk.fields.Addr().MethodByName(name); m.IsValid() {
			h.fn = m
			return h
		}
	}
	if f := mk.fields.FieldByName(name); f.IsValid() && f.Kind() == reflect.Func && !f.IsNil() && f.CanInterface() {
		h.fn = f
	}
	return h
}

// call runs the hook, converting an error result or a panic into ErrHookFailure. A missing hook succeeds.
func (h hook) call() (err error) {
	if !h.fn.IsValid() {
		return nil
	}
	t := h.fn.Type()
	if t.NumIn() != 0 || t.NumOut() > 1 || (t.NumOut() == 1 && t.Out(0) != errorType) {
		return fmt.Errorf("%w: %s has signature %s", ErrHookFailure, h.name, t)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrHookFailure, h.name, r)
		}
	}()
	out := h.fn.Call(nil)
	if len(out) == 1 && !out[0].IsNil() {
		err = fmt.Errorf("%w: %s: %w", ErrHookFailure, h.name, out[0].Interface().(error))
	}
	return
}

func (h hook) defined() bool {
	return h.fn.IsValid()
}

// declaredHooks lists the hooks a module defines, in lifecycle order.
func declaredHooks(mk *marker) (names []string) {
	for _, n := range []string{hookLoad, hookInit, hookStart} {
		if lookupHook(mk, n).defined() {
			names = append(names, n)
		}
	}
	return
}
