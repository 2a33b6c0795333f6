package tasks

import (
	"context"
	"sync"
	"time"
)

// Task is a handle to a scheduled callback that can be cancelled before it
// fires. Countdown rendering and overlay auto-dismiss use these handles so an
// early session end never leaves a stray timer mutating torn-down state.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	fired bool
}

// After schedules fn to run once after d. The callback receives a context that
// is cancelled when the task is cancelled.
func After(parent context.Context, d time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		t.mu.Lock()
		t.fired = true
		t.mu.Unlock()
		fn(ctx)
	}()

	return t
}

// Every schedules fn on a fixed interval until the task is cancelled. The tick
// count passed to fn starts at 1.
func Every(parent context.Context, interval time.Duration, fn func(ctx context.Context, tick int)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		tick := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick++
				fn(ctx, tick)
			}
		}
	}()

	return t
}

// Cancel stops the task if it has not fired yet and waits for the goroutine
// to exit. Safe to call multiple times.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done
}

// Fired reports whether a one-shot task's callback ran.
func (t *Task) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Wait blocks until the task goroutine has exited.
func (t *Task) Wait() {
	<-t.done
}
