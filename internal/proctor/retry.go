package proctor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// withRetry races op against timeout and retries up to attempts times, with
// a fixed delay between tries. Only timeouts are retried; a business-logic
// rejection surfaces immediately.
func withRetry(ctx context.Context, attempts int, timeout, delay time.Duration, op func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		opCtx, cancel := context.WithTimeout(ctx, timeout)
		err := op(opCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return err
		}
		last = err
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrNetworkTimeout, last)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNetworkTimeout)
}
