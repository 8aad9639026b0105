// Package infra holds shared plumbing used by the concrete adapters.
package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryConfig shapes the exponential backoff applied to outbound calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches the delivery policy for webhook and
// transcription calls: three attempts, doubling delay, capped at 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// ErrPermanent marks a failure that more attempts cannot fix, such as a
// rejected request. Wrap it with %w to stop WithRetry after one try.
var ErrPermanent = errors.New("permanent failure")

// WithRetry runs fn until it succeeds or the attempt ceiling is reached,
// sleeping with exponential backoff between attempts. Context errors and
// errors marked ErrPermanent end the loop immediately; the caller is gone
// or another attempt would meet the same rejection.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, ErrPermanent) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if delay = time.Duration(float64(delay) * cfg.Multiplier); delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// IsRetryableHTTPStatus reports whether a response status is worth another
// attempt. Throttling and server-side failures are; client errors are not.
func IsRetryableHTTPStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
