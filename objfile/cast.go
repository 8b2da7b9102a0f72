package objfile

import (
	"fmt"
	"unsafe"
)

// Func converts the code address of a function symbol into a callable of type T. T must be a func
// type matching the symbol's signature.
//
// The returned function is safe to keep and call from many goroutines while the object stays loaded.
func Func[T any](addr uintptr) T {
	entry := new(uintptr)
	*entry = addr
	fv := unsafe.Pointer(entry)
	return *(*T)(unsafe.Pointer(&fv))
}

// Use converts addr like Func and hands it to f, turning a panic inside f into an error.
func Use[T any](addr uintptr, f func(T) error) (err error) {
	defer func() {
		switch x := recover().(type) {
		case nil:
		case error:
			err = fmt.Errorf("%w: %w", ErrPanicked, x)
		default:
			err = fmt.Errorf("%w: %v", ErrPanicked, x)
		}
	}()
	return f(Func[T](addr))
}
