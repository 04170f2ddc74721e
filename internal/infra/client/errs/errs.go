// Package errs classifies failures from the remote API into a small
// taxonomy with retryability hints and stable user-facing messages.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the taxonomy bucket of a failure.
type Kind string

const (
	KindNetwork      Kind = "network_error"
	KindAuth         Kind = "auth_error"
	KindClient       Kind = "client_error"
	KindServer       Kind = "server_error"
	KindRateLimit    Kind = "rate_limit_exceeded"
	KindValidation   Kind = "validation_error"
	KindBatchCleared Kind = "batch_cleared"
	KindUnknown      Kind = "unknown_error"
)

// Retryable reports whether failures of this kind may be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindServer, KindRateLimit:
		return true
	}
	return false
}

// NormalizedError is the canonical failure representation.
// It is built once at the boundary and never mutated.
type NormalizedError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Code       string
	Details    map[string]any
	Timestamp  time.Time

	cause error
}

func (e *NormalizedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *NormalizedError) Unwrap() error { return e.cause }

// Retryable is derived from Kind.
func (e *NormalizedError) Retryable() bool { return e.Kind.Retryable() }

// UserMessage returns the stable message to show instead of technical detail.
func (e *NormalizedError) UserMessage() string { return UserMessage(e.Kind) }

// Is matches another *NormalizedError by Kind so that
// errors.Is(err, errs.New(errs.KindAuth, "")) works.
func (e *NormalizedError) Is(target error) bool {
	var t *NormalizedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a NormalizedError of the given kind.
func New(kind Kind, message string) *NormalizedError {
	return &NormalizedError{
		Kind:      kind,
		Message:   message,
		Code:      string(kind),
		Timestamp: time.Now(),
	}
}

// Wrap builds a NormalizedError that keeps err as its cause.
func Wrap(kind Kind, err error) *NormalizedError {
	ne := New(kind, err.Error())
	ne.cause = err
	return ne
}

// StatusError is returned by executors for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, truncate(string(e.Body), 256))
}

var (
	ErrRateLimited  = New(KindRateLimit, "rate limit exceeded")
	ErrBatchCleared = New(KindBatchCleared, "batch cleared before dispatch")
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
