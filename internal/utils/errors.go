package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorCode categorizes pipeline failures for routing decisions: which are
// retried, which are absorbed, which are recorded per keyword.
type ErrorCode string

const (
	// Transport-class failures, retryable by the page-level policy.
	ErrCodeNavigationTimeout ErrorCode = "NAVIGATION_TIMEOUT"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeBrowserFailed     ErrorCode = "BROWSER_FAILED"

	// Non-fatal: pipeline continues unauthenticated.
	ErrCodeAuthFailed ErrorCode = "AUTH_FAILED"

	// Absorbed locally, recorded as anomalies, never escalated.
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"

	// Recorded as a keyword-level failure without aborting the batch.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"

	// Surfaced immediately for the affected operation only.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// StructuredError carries a failure category alongside the underlying cause.
type StructuredError struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Retryable bool
	Timestamp time.Time
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *StructuredError) Unwrap() error { return e.Cause }

// Is matches on the error code so callers can compare against sentinel codes.
func (e *StructuredError) Is(target error) bool {
	if se, ok := target.(*StructuredError); ok {
		return e.Code == se.Code
	}
	return false
}

// WithCause attaches the underlying error.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// AsRetryable marks the error as eligible for the retry policy.
func (e *StructuredError) AsRetryable() *StructuredError {
	e.Retryable = true
	return e
}

// NewError creates a structured error. Transport-class codes are retryable
// out of the box.
func NewError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:      code,
		Message:   message,
		Retryable: code == ErrCodeNavigationTimeout || code == ErrCodeConnectionFailed || code == ErrCodeBrowserFailed,
		Timestamp: time.Now(),
	}
}

// IsRetryable reports whether err belongs to the transport failure class.
// It recognizes structured errors, context deadline expiry and net timeouts,
// so the retry predicate stays decoupled from any one error hierarchy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var se *StructuredError
	if errors.As(err, &se) {
		return se.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// ErrorCodeOf extracts the code from a structured error, or UNKNOWN.
func ErrorCodeOf(err error) ErrorCode {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorCode("UNKNOWN")
}
