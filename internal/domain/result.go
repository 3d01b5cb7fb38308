package domain

// Result is a tagged success/failure value. Every fallible operation exposed
// by a component returns one, so the failure side of the contract is explicit
// in the signature instead of hiding in a bare error return.
//
// The failure side is always *Error; components wrap their raw causes before
// returning.
type Result[T any] struct {
	value T
	err   *Error
}

// Ok wraps a success value.
func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

// Err wraps a failure. A nil *Error is a programming mistake; it is coerced
// into an internal error so the Result never reports success by accident.
func Err[T any](e *Error) Result[T] {
	if e == nil {
		e = AsError(nil)
	}
	return Result[T]{err: e}
}

// IsOk reports whether the result holds a success value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the success value. Only meaningful when IsOk.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure, or nil on success.
func (r Result[T]) Err() *Error { return r.err }

// Unpack splits the result into its conventional Go form.
func (r Result[T]) Unpack() (T, *Error) { return r.value, r.err }

// MapErr rebuilds a failed Result under a different success type, preserving
// the error. Panics if the result is a success; use only on failures.
func MapErr[U, T any](r Result[T]) Result[U] {
	if r.err == nil {
		panic("domain: MapErr on successful result")
	}
	return Err[U](r.err)
}
