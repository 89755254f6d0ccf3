package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig controls retry behaviour for provider HTTP calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig retries transient failures twice with capped backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// httpStatusError marks a response with a non-2xx status.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

// retryable reports whether an error is worth another attempt:
// rate limits, upstream 5xx, and transport-level failures.
func retryable(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		switch se.status {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	// Network errors (no HTTP status) are retryable; context errors are not.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// RetryDo runs fn with exponential backoff for retryable errors.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts || !retryable(err) {
			break
		}

		slog.Debug("llm call retry", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = min(delay*2, cfg.MaxDelay)
	}

	return zero, lastErr
}
