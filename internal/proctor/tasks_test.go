package proctor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskGroup_RunsAndStops(t *testing.T) {
	g := NewTaskGroup()
	var fires int64
	g.Every("tick", 5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&fires, 1)
	})

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt64(&fires) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt64(&fires) == 0 {
		t.Fatal("task never fired")
	}

	g.Stop()
	after := atomic.LoadInt64(&fires)
	time.Sleep(30 * time.Millisecond)
	if got := atomic.LoadInt64(&fires); got != after {
		t.Errorf("task fired %d more times after Stop", got-after)
	}
}

func TestTaskGroup_StopIsIdempotent(t *testing.T) {
	g := NewTaskGroup()
	g.Every("tick", time.Hour, func(ctx context.Context) {})
	g.Stop()
	g.Stop()
	if !g.Stopped() {
		t.Error("group not stopped")
	}
}

func TestTaskGroup_AddAfterStopIsNoop(t *testing.T) {
	g := NewTaskGroup()
	g.Stop()
	var fires int64
	g.Every("late", time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&fires, 1)
	})
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&fires) != 0 {
		t.Error("task added after Stop still ran")
	}
	if len(g.Names()) != 0 {
		t.Error("stopped group registered a task name")
	}
}

func TestTaskGroup_Names(t *testing.T) {
	g := NewTaskGroup()
	defer g.Stop()
	g.Every("silent-verify", time.Hour, func(ctx context.Context) {})
	g.Every("auto-save", time.Hour, func(ctx context.Context) {})
	names := g.Names()
	if len(names) != 2 || names[0] != "silent-verify" || names[1] != "auto-save" {
		t.Errorf("names: got %v", names)
	}
}
