// Package apperr defines the error taxonomy shared by the approval and shift-grid engines.
// Every refusal is one of the sentinels below, wrapped with context; callers test with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed input (bad template, unknown code, cross-row selection)
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized is returned when the actor is not the current step's approver or not the document creator
	ErrUnauthorized = errors.New("authorization error")

	// ErrStateConflict is returned when the action does not match the current state
	ErrStateConflict = errors.New("state conflict")

	// ErrPrecondition is returned when a gate such as the creator signature is not satisfied
	ErrPrecondition = errors.New("precondition failed")

	ErrNotFound = errors.New("not found")

	// Confirmation-time resolution failures
	ErrUnresolvedApprover = errors.New("unresolved approver")
	ErrNoCandidatesFound  = errors.New("no candidates found")
	ErrSelectionRequired  = errors.New("approver selection required")
	ErrEmptyApprovalLine  = errors.New("empty approval line")

	// ErrCorrupted marks a single document's workflow data as unusable
	ErrCorrupted = errors.New("corrupted workflow data")
)

func wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Validation wraps ErrValidation
func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

// Unauthorized wraps ErrUnauthorized
func Unauthorized(format string, args ...interface{}) error {
	return wrap(ErrUnauthorized, format, args...)
}

// StateConflict wraps ErrStateConflict
func StateConflict(format string, args ...interface{}) error {
	return wrap(ErrStateConflict, format, args...)
}

// Precondition wraps ErrPrecondition
func Precondition(format string, args ...interface{}) error {
	return wrap(ErrPrecondition, format, args...)
}

// NotFound wraps ErrNotFound
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// Corrupted wraps ErrCorrupted
func Corrupted(format string, args ...interface{}) error {
	return wrap(ErrCorrupted, format, args...)
}

// Kind returns the taxonomy sentinel err belongs to, or nil for infrastructure errors
func Kind(err error) error {
	for _, sentinel := range []error{
		ErrValidation, ErrUnauthorized, ErrStateConflict, ErrPrecondition, ErrNotFound,
		ErrUnresolvedApprover, ErrNoCandidatesFound, ErrSelectionRequired, ErrEmptyApprovalLine,
		ErrCorrupted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}
