package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "collect", fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("registry unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	sentinel := errors.New("registry unavailable")
	calls := 0
	err := Retry(context.Background(), "collect", fast, func(context.Context) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("duplicate identity")
	calls := 0
	err := Retry(context.Background(), "collect", fast, func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "collect", fast, func(context.Context) error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoReturnsValue(t *testing.T) {
	calls := 0
	names, err := Do(context.Background(), "collect", fast, func(context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("manifest locked")
		}
		return []string{"Ball", "Paddle"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ball", "Paddle"}, names)
	assert.Equal(t, 2, calls)
}

func TestDelayStaysWithinBounds(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}.withDefaults()
	for attempt := 1; attempt <= 10; attempt++ {
		d := cfg.delay(attempt)
		assert.GreaterOrEqual(t, d, cfg.InitialDelay)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "refresh", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), 10*time.Millisecond, "collect", func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "collect", te.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(parent, time.Second, "collect", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	err = WithTimeout(context.Background(), time.Second, "refresh", func(context.Context) error { return nil })
	assert.NoError(t, err)

	err = WithTimeout(context.Background(), 0, "refresh", func(context.Context) error { return errors.New("direct") })
	assert.EqualError(t, err, "direct")
}
