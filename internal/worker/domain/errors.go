package domain

import "errors"

var (
	// ErrInvalidMessage is returned for a queue message that names no escrow
	ErrInvalidMessage = errors.New("invalid reconcile message")

	// ErrEscrowNotFound is returned when the message names an unknown escrow
	ErrEscrowNotFound = errors.New("escrow not found")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
