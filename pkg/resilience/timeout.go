package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TimeoutError reports an operation abandoned at its deadline. It matches
// context.DeadlineExceeded under errors.Is.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// WithTimeout runs fn under a deadline of timeout. It returns as soon as the
// deadline passes even if fn has not; fn sees the cancelled context and its
// eventual result is discarded. A non-positive timeout runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cause := &TimeoutError{Op: name, Limit: timeout}
	tctx, cancel := context.WithTimeoutCause(ctx, timeout, cause)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()
	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, context.Cause(ctx))
		}
		slog.Warn("operation abandoned at deadline", "operation", name, "limit", timeout)
		return cause
	}
}
