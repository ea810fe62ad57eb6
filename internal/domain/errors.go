package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks client-correctable input problems.
	ErrValidation = errors.New("validation failed")

	ErrUnsupportedKind = fmt.Errorf("%w: unsupported indicator type", ErrValidation)
	ErrInvalidQuery    = fmt.Errorf("%w: query is neither an address nor a CIDR block", ErrValidation)

	ErrConflict = errors.New("record already exists")
	ErrNotFound = errors.New("record not found")

	// Per-destination delivery failures. These are recorded as delivery outcomes
	// and never returned to the API caller.
	ErrMappingMissing    = errors.New("destination has no identifier for indicator type")
	ErrCredentialMissing = errors.New("destination credential not configured")
	ErrTransport         = errors.New("destination transport failure")
)

// ValidationError describes why a field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
