package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the queue store and router.
var (
	// ErrDuplicateJob means the (number, content, campaign) tuple is
	// already enrolled. Reported to the caller, never an attempt.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrJobNotFound means the referenced job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoOperator means no enabled operator exists. Delivery halts for
	// the affected job without consuming an attempt.
	ErrNoOperator = errors.New("no enabled operator")

	// ErrEmptyMessage means the message resolved to an empty string after
	// placeholder substitution. Rejected locally, no transport call.
	ErrEmptyMessage = errors.New("message empty after substitution")

	// ErrDrainActive means a campaign drain is already running; only one
	// foreground drain may be active at a time.
	ErrDrainActive = errors.New("a campaign drain is already active")
)

// ValidationError rejects a row before enrollment or a request before a
// send. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// TransportError classifies a failed transport call. Timeout failures keep
// at-least-once semantics: the attempt is consumed and scheduled for backoff.
type TransportError struct {
	Operator string
	Timeout  bool
	Err      error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("[%s] transport timeout: %v", e.Operator, e.Err)
	}
	return fmt.Sprintf("[%s] transport error: %v", e.Operator, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is a structured rejection from the carrier. The provider's
// message is preserved verbatim for diagnostics.
type ProviderError struct {
	Operator string
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] provider rejected: [%s] %s", e.Operator, e.Code, e.Message)
}
