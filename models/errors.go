package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every engine mutation. Handlers map these onto
// HTTP status codes: ValidationError -> 400, StateConflictError -> 409,
// NotFoundError -> 404.

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type StateConflictError struct {
	Message string
}

func (e *StateConflictError) Error() string { return e.Message }

func NewStateConflictError(format string, args ...interface{}) error {
	return &StateConflictError{Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsStateConflictError(err error) bool {
	var ce *StateConflictError
	return errors.As(err, &ce)
}

func IsNotFoundError(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// Import-specific failures. Both are shape problems the caller must fix,
// except the ambiguous case which reflects a conflict with the file itself.

func NewAmbiguousColumnError(header string) error {
	return NewStateConflictError("ambiguous column: header %q matches more than one column", header)
}

func NewColumnNotFoundError(header string) error {
	return NewNotFoundError("column not found: %q", header)
}
