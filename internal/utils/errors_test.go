package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewErrorRetryableClassification(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{ErrCodeNavigationTimeout, true},
		{ErrCodeConnectionFailed, true},
		{ErrCodeBrowserFailed, true},
		{ErrCodeAuthFailed, false},
		{ErrCodeExtractionFailed, false},
		{ErrCodePersistenceFailed, false},
		{ErrCodeInvalidConfig, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewError(tt.code, "msg")
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestStructuredErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrCodeConnectionFailed, "page load failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !errors.Is(err, NewError(ErrCodeConnectionFailed, "different message")) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(err, NewError(ErrCodeAuthFailed, "page load failed")) {
		t.Error("errors with different codes must not match")
	}

	msg := err.Error()
	if msg != "CONNECTION_FAILED: page load failed (caused by: connection refused)" {
		t.Errorf("Error() = %q", msg)
	}
}

func TestIsRetryableRecognizesWrappedErrors(t *testing.T) {
	inner := NewError(ErrCodeNavigationTimeout, "timed out")
	wrapped := fmt.Errorf("keyword camera: %w", inner)
	if !IsRetryable(wrapped) {
		t.Error("retryable structured error lost through fmt wrapping")
	}

	if !IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline expiry should be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("cancellation is not a transient failure")
	}
	if IsRetryable(nil) {
		t.Error("nil error reported retryable")
	}
}

func TestErrorCodeOf(t *testing.T) {
	if code := ErrorCodeOf(NewError(ErrCodeAuthFailed, "x")); code != ErrCodeAuthFailed {
		t.Errorf("code = %s, want AUTH_FAILED", code)
	}
	if code := ErrorCodeOf(errors.New("plain")); code != "UNKNOWN" {
		t.Errorf("code = %s, want UNKNOWN", code)
	}
}
