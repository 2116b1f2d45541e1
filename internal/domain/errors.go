package domain

import (
	"context"
	"errors"
)

// Reason is the gateway's admission decision for an inbound event. Rejections
// are policy outcomes, not errors; they are never retried.
type Reason string

const (
	ReasonAccepted        Reason = "accepted"
	ReasonCircuitOpen     Reason = "circuit_open"
	ReasonUnsupportedType Reason = "unsupported_type"
	ReasonDuplicate       Reason = "duplicate"
	ReasonRateLimited     Reason = "rate_limited"
)

var (
	// ErrNoHandler signals an event kind with no registered handler.
	ErrNoHandler = errors.New("no handler registered for event kind")
	// ErrQueueFull signals that the processing queue rejected an enqueue.
	ErrQueueFull = errors.New("processing queue is full")
)

// PermanentError marks a failure that must not be retried: the task goes
// straight to the dead-letter list.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the processor dead-letters it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must skip the retry path. Everything else,
// including deadline expiry, is treated as a transient downstream failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	// Context cancellation means shutdown, not a downstream fault, but a
	// deadline hit is indistinguishable from a slow dependency.
	return !errors.Is(err, context.Canceled)
}
