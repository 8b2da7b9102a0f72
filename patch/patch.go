/*
Package patch redirects function slots to other implementations, reversibly.

A Slot is a word of memory holding a Go function value: a function variable, or a function field of a
struct used as a dispatch table. Installing a redirection swaps the word for the implementation's
closure pointer and returns a Record holding the previous word; reverting writes it back verbatim.
Every caller that loads the slot afterwards reaches the new implementation. A call already in flight
keeps the target it loaded.

Slots are data, not code pages, so no page protection has to be lifted around the write.
*/
package patch

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"
)

var (
	// ErrInvalidSlot occurs when a slot does not address a function value.
	ErrInvalidSlot = errors.New("invalid function slot")
	// ErrSignature occurs when the implementation cannot be stored into the slot.
	ErrSignature = errors.New("incompatible function signature")
	// ErrNilTarget occurs when the implementation is a nil function.
	ErrNilTarget = errors.New("nil redirection target")
)

type (
	// Redirector installs and reverts redirections.
	Redirector interface {
		Install(stub Slot, impl reflect.Value) (*Record, error)
		Revert(r *Record)
	}
	// Record is the state needed to undo one redirection.
	Record struct {
		slot      Slot
		original  unsafe.Pointer
		installed unsafe.Pointer
		reverted  atomic.Bool
	}
	// Engine is the default Redirector.
	Engine struct{}
)

// New creates an Engine.
func New() *Engine {
	return &Engine{}
}

// Install stores impl into stub and returns the record to undo it.
func (*Engine) Install(stub Slot, impl reflect.Value) (r *Record, err error) {
	if !stub.Valid() {
		return nil, ErrInvalidSlot
	}
	if !impl.IsValid() || impl.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is not a function", ErrSignature, stub.name)
	}
	if impl.IsNil() {
		return nil, fmt.Errorf("%w for %s", ErrNilTarget, stub.name)
	}
	if !impl.Type().ConvertibleTo(stub.typ) {
		return nil, fmt.Errorf("%w: %s is %s, target is %s", ErrSignature, stub.name, stub.typ, impl.Type())
	}
	holder := reflect.New(stub.typ)
	holder.Elem().Set(impl.Convert(stub.typ))
	next := *(*unsafe.Pointer)(holder.UnsafePointer())
	r = &Record{slot: stub, installed: next}
	r.original = atomic.SwapPointer((*unsafe.Pointer)(stub.addr), next)
	return
}

// Revert restores the word the record replaced. Reverting twice has no effect.
func (*Engine) Revert(r *Record) {
	if r == nil || !r.reverted.CompareAndSwap(false, true) {
		return
	}
	atomic.StorePointer((*unsafe.Pointer)(r.slot.addr), r.original)
}

// Slot returns the patched slot.
func (r *Record) Slot() Slot {
	return r.slot
}

// Reverted reports whether the record has been reverted.
func (r *Record) Reverted() bool {
	return r.reverted.Load()
}

// Active reports whether the slot still holds the installed implementation.
func (r *Record) Active() bool {
	return !r.Reverted() && atomic.LoadPointer((*unsafe.Pointer)(r.slot.addr)) == r.installed
}

func (r *Record) String() string {
	return fmt.Sprintf("%s@%p: %p -> %p", r.slot.name, r.slot.addr, r.original, r.installed)
}
