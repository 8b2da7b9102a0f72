package patch

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Slot addresses a function value in memory.
type Slot struct {
	name string
	typ  reflect.Type
	addr unsafe.Pointer
}

// Var addresses a function variable. ptr must be a non-nil pointer to a func.
func Var(ptr any) (s Slot, err error) {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Func {
		return s, fmt.Errorf("%w: %T", ErrInvalidSlot, ptr)
	}
	return Slot{name: v.Elem().Type().String(), typ: v.Elem().Type(), addr: v.UnsafePointer()}, nil
}

// Member addresses the function field named field of the struct table points to.
func Member(table any, field string) (s Slot, err error) {
	v := reflect.ValueOf(table)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return s, fmt.Errorf("%w: %T is not a pointer to struct", ErrInvalidSlot, table)
	}
	f, ok := v.Elem().Type().FieldByName(field)
	if !ok || len(f.Index) != 1 {
		return s, fmt.Errorf("%w: %T has no field %s", ErrInvalidSlot, table, field)
	}
	return Field(v.Elem(), f.Index[0])
}

// Field addresses field index of an addressable struct value. The slot lives at the table base plus
// the field offset.
func Field(table reflect.Value, index int) (s Slot, err error) {
	if table.Kind() != reflect.Struct || !table.CanAddr() {
		return s, fmt.Errorf("%w: %s is not an addressable struct", ErrInvalidSlot, table.Type())
	}
	t := table.Type()
	if index < 0 || index >= t.NumField() {
		return s, fmt.Errorf("%w: %s has no field #%d", ErrInvalidSlot, t, index)
	}
	f := t.Field(index)
	if f.Type.Kind() != reflect.Func || !f.IsExported() {
		return s, fmt.Errorf("%w: %s.%s is not an exported function", ErrInvalidSlot, t, f.Name)
	}
	base := table.Addr().UnsafePointer()
	return Slot{
		name: t.String() + "." + f.Name,
		typ:  f.Type,
		addr: unsafe.Add(base, f.Offset),
	}, nil
}

// Valid reports whether the slot addresses a function value.
func (s Slot) Valid() bool {
	return s.addr != nil && s.typ != nil && s.typ.Kind() == reflect.Func
}

// Type is the function type stored in the slot.
func (s Slot) Type() reflect.Type {
	return s.typ
}

func (s Slot) String() string {
	return s.name
}

// Named returns a copy of s carrying a diagnostic name.
func (s Slot) Named(name string) Slot {
	s.name = name
	return s
}
