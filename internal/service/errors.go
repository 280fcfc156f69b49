// Package service provides business logic for the application.
package service

import (
	"errors"
	"sort"
	"strings"
)

// Service errors.
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMalformedBody      = errors.New("malformed request body")
)

// Field error messages.
const (
	msgRequired      = "This field is required."
	msgBlank         = "This field may not be blank."
	msgUsernameTaken = "A user with that username already exists."
	msgInvalidBool   = "Must be a valid boolean."
)

// ValidationError reports one or more invalid input fields.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError creates a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add appends a message for field.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string][]string)
	}
	v.Fields[field] = append(v.Fields[field], message)
}

// Has reports whether any field failed.
func (v *ValidationError) Has() bool {
	return len(v.Fields) > 0
}

// Error lists the failing fields in a stable order.
func (v *ValidationError) Error() string {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// orNil returns v as an error only when it holds failures.
func (v *ValidationError) orNil() error {
	if v.Has() {
		return v
	}
	return nil
}

// InvalidBoolError builds the error for an unparseable boolean query parameter.
func InvalidBoolError(field string) *ValidationError {
	return NewValidationError(field, msgInvalidBool)
}
