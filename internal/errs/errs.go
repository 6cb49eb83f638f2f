// Package errs defines the error taxonomy shared by the coordination core.
//
// NotFound is a valid negative result, Conflict is a rejected state
// transition, Validation is malformed local input rejected before any
// network call, and Transport is a retryable network or backend failure.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a valid negative result (no such identity, no such
	// record). Callers must not treat it as a failure.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state transition attempted from a terminal or
	// otherwise invalid state.
	ErrConflict = errors.New("conflict")

	// ErrValidation marks malformed local input, rejected before any
	// network round trip.
	ErrValidation = errors.New("invalid input")
)

// TransportError wraps a network or backend failure. The operation is
// retryable; the caller owns retry and backoff policy.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a retryable transport failure for the given
// operation name.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err is a transport failure the caller may
// retry. Validation, NotFound, and Conflict are never retryable.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
