package scraper

import (
	"context"
	"time"

	"github.com/valpere/ListingScout/internal/monitoring"
	"github.com/valpere/ListingScout/internal/utils"
)

// RetryPolicy retries transport-class failures with exponential backoff.
// Parse failures and other data-quality problems are not routed through it;
// retrying those cannot succeed.
type RetryPolicy struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy returns the standard page-level policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffMin:  2 * time.Second,
		BackoffMax:  10 * time.Second,
		Retryable:   utils.IsRetryable,
	}
}

// Do runs op up to MaxAttempts times, sleeping the backoff between attempts.
// It returns the last error when attempts are exhausted and stops early on a
// non-retryable error or context cancellation.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		retryable := p.Retryable == nil || p.Retryable(lastErr)
		if !retryable || attempt == attempts {
			return lastErr
		}

		monitoring.RetryAttempts.Inc()
		select {
		case <-time.After(p.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// backoff doubles the minimum delay per completed attempt, capped at the
// maximum.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BackoffMin << uint(attempt-1)
	if d > p.BackoffMax || d <= 0 {
		return p.BackoffMax
	}
	return d
}
