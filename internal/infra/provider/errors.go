package provider

import (
	"errors"
	"fmt"
)

// Error is a network or protocol failure talking to an external provider.
// Retryable errors are requeued by the poller up to its attempt bound.
type Error struct {
	Provider  string
	Op        string
	Err       error
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a retryable provider error.
func NewError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Err: err, Retryable: true}
}

// NewPermanentError creates a non-retryable provider error, used for
// protocol-level failures a retry cannot fix.
func NewPermanentError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Err: err, Retryable: false}
}

// IsRetryable reports whether the error is a provider error worth retrying.
// Unknown errors default to retryable: transient network failures rarely
// arrive wrapped.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
