// Package task provides the cancellable background task used by the
// renderers and a single-shot handoff for passing results back to the
// owning goroutine.
package task

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task runs at most one background function at a time. Starting a new run
// cancels and joins the previous one first, so two runs never overlap.
//
// Start, Cancel and Close must be called from the owning goroutine.
type Task struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// Start cancels any previous run, waits for it to exit and launches fn on
// a new goroutine. fn should return promptly once ctx is cancelled.
func (t *Task) Start(fn func(ctx context.Context)) {
	t.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	t.running.Store(true)
	go func() {
		defer close(done)
		defer t.running.Store(false)
		fn(ctx)
	}()
}

// Cancel requests cancellation and blocks until the running function has
// returned. It is a no-op when nothing is running.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run returns without cancelling it
func (t *Task) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}
}

// IsRunning reports whether a run is in progress
func (t *Task) IsRunning() bool {
	return t.running.Load()
}

// Close cancels and joins. The Task may be started again afterwards.
func (t *Task) Close() {
	t.Cancel()
}

// Handoff passes one value from a worker to the owner. The worker writes
// the value with Publish and never touches it again; the owner polls Ready
// and collects it with Take. The atomic flag orders the write before the
// read, so the value itself needs no lock.
type Handoff[T any] struct {
	value T
	ready atomic.Bool
}

// Publish stores v and marks it ready. It must be called at most once per
// Reset and only by the worker.
func (h *Handoff[T]) Publish(v T) {
	h.value = v
	h.ready.Store(true)
}

// Ready reports whether a value is waiting
func (h *Handoff[T]) Ready() bool {
	return h.ready.Load()
}

// Take returns the published value and clears the ready flag. ok is false
// when nothing was published.
func (h *Handoff[T]) Take() (v T, ok bool) {
	if !h.ready.Load() {
		return v, false
	}
	v = h.value
	var zero T
	h.value = zero
	h.ready.Store(false)
	return v, true
}

// Reset drops any unclaimed value. Call it only while no worker can
// publish, for example after Task.Cancel.
func (h *Handoff[T]) Reset() {
	var zero T
	h.value = zero
	h.ready.Store(false)
}
