// Package dispatch implements the Main-Thread Dispatcher: a cooperative
// FIFO queue of work items drained on the Editor's per-frame tick.
// Background goroutines enqueue a zero-argument function and receive a
// Future; the function itself always runs on whatever goroutine calls
// Drain, never on the enqueuing goroutine.
package dispatch

import (
	"context"
	"sync"
)

// Task is a unit of work queued for main-thread execution. It must not
// block on I/O or acquire locks held by background goroutines: the
// dispatcher is single-threaded and a blocked Task stalls every other
// queued Task and the tick itself.
type Task func() (any, error)

// Future is returned by Enqueue and completes once the corresponding Task
// has run (or the Dispatcher was stopped before it could).
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Await blocks until f completes or ctx is done. The continuation runs on
// the caller's own goroutine, never inline on the tick goroutine: Drain
// only ever closes f's completion channel, it never invokes caller code.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ErrStopped is the error delivered to any Future whose Task was dropped
// because the Dispatcher was stopped before draining it.
type stoppedError struct{}

func (stoppedError) Error() string { return "dispatch: dispatcher stopped" }

// ErrStopped indicates a Task was never run because Stop was called first.
var ErrStopped error = stoppedError{}

type queuedTask struct {
	task   Task
	future *Future
}

// Dispatcher is a FIFO queue of Tasks, drained by repeated calls to Drain.
// The zero value is not usable; construct with New.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []queuedTask
	stopped bool
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Enqueue appends task to the queue and returns a Future that completes
// once a Drain call has run it. If the Dispatcher has already been
// stopped, the returned Future completes immediately with ErrStopped.
func (d *Dispatcher) Enqueue(task Task) *Future {
	f := newFuture()
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		f.complete(nil, ErrStopped)
		return f
	}
	d.queue = append(d.queue, queuedTask{task: task, future: f})
	d.mu.Unlock()
	return f
}

// Drain drains every Task queued as of this call (not ones enqueued by
// those Tasks themselves — a Task that enqueues further work enqueues
// behind everything already queued, per FIFO ordering) and runs each
// synchronously on the calling goroutine, which must be the Editor's main
// thread.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, qt := range batch {
		result, err := qt.task()
		qt.future.complete(result, err)
	}
}

// Stop marks the Dispatcher closed to new work and drains and fails every
// Task still queued. Tasks already drained by a prior Drain are unaffected.
// Stop does not prevent a Drain already in progress from completing; call
// it after the main-thread loop has exited.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, qt := range batch {
		qt.future.complete(nil, ErrStopped)
	}
}

// Pending reports the current queue depth. Intended for diagnostics and
// tests; the value is stale the instant it is returned.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
