package proctor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, 50*time.Millisecond, time.Millisecond, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("got err=%v calls=%d, want nil and 1", err, calls)
	}
}

func TestWithRetry_RetriesTimeouts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, 10*time.Millisecond, time.Millisecond, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		t.Errorf("recovered op: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, 5*time.Millisecond, time.Millisecond, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrNetworkTimeout) {
		t.Errorf("got %v, want ErrNetworkTimeout", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestWithRetry_BusinessRejectionNotRetried(t *testing.T) {
	rejection := errors.New("session locked")
	calls := 0
	err := withRetry(context.Background(), 3, 50*time.Millisecond, time.Millisecond, func(ctx context.Context) error {
		calls++
		return rejection
	})
	if !errors.Is(err, rejection) {
		t.Errorf("got %v, want the rejection itself", err)
	}
	if calls != 1 {
		t.Errorf("business rejection retried: %d calls", calls)
	}
}
