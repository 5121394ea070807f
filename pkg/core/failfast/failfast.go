// Package failfast turns broken invariants and escaped handler panics into
// loud, stack-carrying panics instead of silent corruption.
package failfast

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a value recovered from a panicking handler together with
// the stack of the goroutine that panicked.
type PanicError struct {
	Where string // e.g. "threadpool[bench] worker 3"
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fail-fast: %s: panic: %v\n%s", e.Where, e.Value, e.Stack)
}

// Unwrap exposes the recovered value when it was itself an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Capture builds a PanicError from a recovered value.
// Must be called from the deferred function that recovered, so the stack is
// still the panicking goroutine's.
func Capture(where string, recovered interface{}) *PanicError {
	if pe, ok := recovered.(*PanicError); ok {
		return pe
	}
	return &PanicError{
		Where: where,
		Value: recovered,
		Stack: debug.Stack(),
	}
}

// Fatal re-panics with a PanicError. In a worker goroutine this terminates the process.
func Fatal(where string, recovered interface{}) {
	panic(Capture(where, recovered))
}

// If panics if condition is false
// Allows formatted messages with args
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("fail-fast: "+message, args...))
	}
}
