package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransportRetryable(t *testing.T) {
	err := Transport("search identity", errors.New("connection refused"))
	if !IsRetryable(err) {
		t.Error("transport error should be retryable")
	}
	wrapped := fmt.Errorf("outer: %w", err)
	if !IsRetryable(wrapped) {
		t.Error("wrapped transport error should stay retryable")
	}
}

func TestTerminalErrorsNotRetryable(t *testing.T) {
	for _, err := range []error{ErrNotFound, ErrConflict, Validationf("empty query")} {
		if IsRetryable(err) {
			t.Errorf("%v should not be retryable", err)
		}
	}
}

func TestValidationfMatchesSentinel(t *testing.T) {
	err := Validationf("cannot befriend yourself")
	if !errors.Is(err, ErrValidation) {
		t.Error("Validationf result should match ErrValidation")
	}
}
