package dispatch

import (
	"context"
	"errors"
	"time"
)

// runWithTimeout races fn against a deadline. On expiry the function's
// context is cancelled and ErrTimeout returned; the function's own
// eventual result is discarded. A non-positive duration runs fn
// directly.
func runWithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(tctx)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return tctx.Err()
	}
}
