// Package dispatch delivers asynchronous results back to a single caller-owned
// callback context.
package dispatch

import (
	"context"
	"sync"
)

// Executor runs callbacks on behalf of a background operation.
type Executor interface {
	Post(fn func())
}

// Inline runs callbacks on the posting goroutine. Useful in tests.
type Inline struct{}

// Post runs fn immediately.
func (Inline) Post(fn func()) {
	fn()
}

// Loop is a serial callback context. Callbacks posted from any goroutine run
// one at a time, in order, on the goroutine that calls Run.
type Loop struct {
	queue     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop creates a loop whose queue holds up to buffer pending callbacks
// before Post blocks.
func NewLoop(buffer int) *Loop {
	if buffer < 0 {
		buffer = 0
	}
	return &Loop{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post queues fn. Callbacks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-l.done:
	case l.queue <- fn:
	}
}

// Run executes queued callbacks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			fn()
		}
	}
}

// Close stops Run and drops any pending callbacks. Safe to call more than once.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Guarded wraps fn so that it becomes a no-op once ctx is done. It is used by
// cancellable operations that must not deliver callbacks after cancellation,
// even ones already sitting in an executor queue.
func Guarded(ctx context.Context, fn func()) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		fn()
	}
}
