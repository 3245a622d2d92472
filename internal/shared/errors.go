package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrBusinessRule marks a rejection by a business rule (ledger, order lifecycle).
	ErrBusinessRule = errors.New("business rule violated")
	// ErrConflict marks work already in progress elsewhere.
	ErrConflict = errors.New("conflict")
	// ErrTransientStore marks a store failure that survived every retry attempt.
	ErrTransientStore = errors.New("transient store failure")
)

// ValidationError reports the violated constraint on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransientError wraps the last error returned by the store after retries ran out.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrTransientStore.
func (e *TransientError) Is(target error) bool {
	return target == ErrTransientStore
}

// BusinessRule wraps msg as a business rule rejection.
func BusinessRule(msg string) error {
	return fmt.Errorf("%w: %s", ErrBusinessRule, msg)
}
