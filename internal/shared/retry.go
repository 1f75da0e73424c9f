package shared

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryConfig configures the retry decorator. Zero values fall back to
// conservative defaults so callers cannot accidentally disable retries.
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration
}

// DefaultRetryConfig returns the retry configuration used when none is
// supplied.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		BaseDelay:         200 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           30 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.BackoffMultiplier <= 1.0 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// delay returns the backoff delay before the given attempt (1-based).
func (c RetryConfig) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return c.BaseDelay
	}
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// ErrRetryExhausted wraps the last error after all attempts failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// Retry runs op with exponential backoff until it succeeds, the attempt
// budget is spent, or the overall timeout elapses. The context handed to
// op is bounded by the configured timeout, so a hung operation is
// abandoned rather than blocking the caller forever.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	cfg = cfg.normalized()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return retryFailure(err, lastErr)
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return retryFailure(ctx.Err(), lastErr)
		case <-time.After(cfg.delay(attempt)):
		}
	}
	return fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

func retryFailure(ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: %w", ErrRetryExhausted, ctxErr)
	}
	return fmt.Errorf("%w: %w (last error: %w)", ErrRetryExhausted, ctxErr, lastErr)
}
