// Package apperrors defines the error kinds shared across the notifier core.
//
// The engine distinguishes caller mistakes (validation, capacity, not-found)
// from transient conditions handled internally (delivery failures, parse
// failures). Callers classify with errors.Is/errors.As; the HTTP edge maps
// kinds to status codes.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", kind) or use the
// constructors below.
var (
	// ErrNotFound signals an unknown subscription id.
	ErrNotFound = errors.New("not found")
	// ErrCapacity signals an exceeded subscription quota.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrValidation signals malformed subscription parameters.
	ErrValidation = errors.New("validation failed")
	// ErrParse signals a malformed transaction envelope.
	ErrParse = errors.New("parse failed")
)

// ValidationError carries the offending parameter name alongside the message.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Message)
}

// Unwrap makes ValidationError match ErrValidation via errors.Is.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validation builds a ValidationError for the given parameter.
func Validation(param, message string) error {
	return &ValidationError{Param: param, Message: message}
}

// NotFound wraps ErrNotFound with a detail message.
func NotFound(detail string) error {
	if detail == "" {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", detail, ErrNotFound)
}

// Capacity wraps ErrCapacity with a detail message.
func Capacity(detail string) error {
	if detail == "" {
		return ErrCapacity
	}
	return fmt.Errorf("%s: %w", detail, ErrCapacity)
}

// Parse wraps ErrParse with a detail message.
func Parse(detail string) error {
	if detail == "" {
		return ErrParse
	}
	return fmt.Errorf("%s: %w", detail, ErrParse)
}
