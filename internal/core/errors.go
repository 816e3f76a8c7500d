package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrEmptyCategory    = errors.New("empty category")

	// ErrInvalidPolicy is returned when a split policy cannot be applied to
	// the given participants and payer.
	ErrInvalidPolicy = errors.New("invalid split policy")

	// ErrAlreadyMaterialized is a benign outcome: the occurrence being
	// materialized has already produced an expense. Callers treat it as a
	// no-op success.
	ErrAlreadyMaterialized = errors.New("occurrence already materialized")

	// ErrPeriodEmpty means there was nothing to balance in the period. The
	// accompanying report is still valid.
	ErrPeriodEmpty = errors.New("period has no expenses or settlements")
)

// ValidationError describes bad input. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func invalidErr(field string, err error) error {
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}

// PersistenceError wraps a failure from the storage collaborator.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// NewPersistenceError returns nil when cause is nil.
func NewPersistenceError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(cause, &pe) {
		return cause
	}
	return &PersistenceError{Op: op, Cause: cause}
}

// IsPersistence reports whether err came from the storage collaborator.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
