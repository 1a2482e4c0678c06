package proctor

import (
	"context"
	"sync"
	"time"
)

// TaskGroup owns a session's periodic tasks (silent verification, auto-save,
// countdown, guidance) as one named, cancellable unit. Stop cancels and waits
// for every task, so no timer can fire after teardown.
type TaskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	wg      sync.WaitGroup
	stopped bool
	names   []string
}

func NewTaskGroup() *TaskGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskGroup{ctx: ctx, cancel: cancel}
}

// Every runs fn on a fixed interval until the group stops. Adding a task to
// a stopped group is a no-op.
func (g *TaskGroup) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.names = append(g.names, name)
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-g.ctx.Done():
				return
			case <-ticker.C:
			}
			fn(g.ctx)
		}
	}()
}

// Stop cancels every task and waits for them to exit. Idempotent. Must not
// be called from inside a task; tasks that need to stop the group spawn a
// goroutine for it.
func (g *TaskGroup) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func (g *TaskGroup) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// Names lists registered task names, for diagnostics.
func (g *TaskGroup) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}
