package core

import (
	"errors"
	"fmt"
)

// InitErrorClass classifies why a provider could not be initialized.
type InitErrorClass string

const (
	// InitErrorProvider indicates a failure the provider reported itself
	// with a *ProviderError, e.g. a missing model directory.
	InitErrorProvider InitErrorClass = "provider error"

	// InitErrorUnexpected indicates any other error or a panic of the
	// initialization hook.
	InitErrorUnexpected InitErrorClass = "unexpected error"
)

// ProviderError is returned by initialization hooks to report an expected
// failure of the provider.
type ProviderError struct {
	// Message is the human-readable error message.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// NewProviderError creates a provider error.
func NewProviderError(message string, err error) *ProviderError {
	return &ProviderError{Message: message, Err: err}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InitError is a classified initialization failure.
type InitError struct {
	Class InitErrorClass
	Err   error
}

// Error renders the error prefixed with its class label.
func (e *InitError) Error() string {
	return fmt.Sprintf("(%s) %s", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

// ClassifyInitError classifies an error returned by an initialization hook.
func ClassifyInitError(err error) *InitError {
	if err == nil {
		return nil
	}
	var ie *InitError
	if errors.As(err, &ie) {
		return ie
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return &InitError{Class: InitErrorProvider, Err: err}
	}
	return &InitError{Class: InitErrorUnexpected, Err: err}
}

// IsProviderError returns true if err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
