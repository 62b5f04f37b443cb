package errors

import (
	"fmt"
	"runtime/debug"

	"github.com/cockroachdb/errors"
)

// PanicError is a recovered panic. Learners run inside SafeExecute during
// the hyperparameter search, so a panicking trial fails on its own instead
// of taking the fold down.
type PanicError struct {
	PanicValue interface{}
	StackTrace string
	// Operation names what was running, e.g. "fold 2 trial 3 fit".
	Operation string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String includes the goroutine stack captured at recovery.
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.StackTrace
}

func NewPanicError(operation string, v interface{}) *PanicError {
	return &PanicError{PanicValue: v, StackTrace: string(debug.Stack()), Operation: operation}
}

// Recover must be deferred with a pointer to the named error result:
//
//	func (m *Ridge) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "Ridge.Fit")
//	    ...
//	}
//
// A recovered panic replaces *err; an error already stored there is kept
// as a secondary error.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	pe := NewPanicError(operation, r)
	if *err != nil {
		*err = errors.WithSecondaryError(pe, *err)
		return
	}
	*err = pe
}

// SafeExecute runs fn and turns a panic into a *PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
