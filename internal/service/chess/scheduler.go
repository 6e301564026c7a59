package chess

import (
	"context"
	"sync"
	"time"
)

// Task is a delayed unit of work that can be cancelled before or while it
// runs.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Schedule runs fn after delay on its own goroutine. fn receives a context
// that is cancelled by Cancel or when parent ends; fn does not run at all if
// that happens before the delay elapses.
func Schedule(parent context.Context, delay time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}()
	return t
}

func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Done is closed once the task has finished or been abandoned.
func (t *Task) Done() <-chan struct{} { return t.done }
