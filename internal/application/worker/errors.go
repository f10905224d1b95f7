package worker

import (
	"errors"
	"fmt"
)

// === Retry Classification ===

// RetryableError wraps transient errors that a later run may not hit again.
// Only errors wrapped with Transient() are reported as retryable; all other
// errors are treated as permanent until someone fixes the data or the code.
//
// Use for: network timeouts, database connection lost, temporary locks.
// Don't use for: validation errors, not found errors, business logic failures.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Transient wraps an error to signal it should be retried.
//
// Example:
//
//	if err := store.AssignTask(...); err != nil {
//	    return worker.Transient(err)
//	}
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// IsRetryable returns true if the error should be retried.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}

// === Panic Handling ===

// PanicError indicates a panic occurred while processing a tenant.
// Panics indicate programming errors, not transient issues, and are never retryable.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// IsPanic returns true if the error indicates a panic occurred.
func IsPanic(err error) bool {
	var panicErr PanicError
	return errors.As(err, &panicErr)
}
