package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("store unavailable")
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(4), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetryHonoursOverallTimeout(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       100,
		BaseDelay:         20 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           50 * time.Millisecond,
	}
	start := time.Now()
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("always failing")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, fastRetryConfig(5), func(ctx context.Context) error {
		calls++
		return errors.New("should not matter")
	})
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestRetryBackoffDelayCapped(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          25 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Timeout:           time.Second,
	}.normalized()
	assert.Equal(t, 10*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 20*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 25*time.Millisecond, cfg.delay(3))
	assert.Equal(t, 25*time.Millisecond, cfg.delay(10))
}
