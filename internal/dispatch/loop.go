// Package dispatch provides the serialised execution context that owns
// all registry, arbiter and negotiator mutation.
//
// Inbound work originates on many goroutines (bus callbacks, timers,
// API handlers) but every state transition must happen in a strict
// total order. The Loop is a single-goroutine actor queue: callers post
// closures, one goroutine drains them. No fine-grained locking is
// needed on the hot path because nothing mutates shared state off the
// loop.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sentinel errors for the dispatch package.
var (
	// ErrQueueFull is returned when the loop's queue is saturated.
	ErrQueueFull = errors.New("dispatch: queue full")

	// ErrStopped is returned when posting to a stopped loop.
	ErrStopped = errors.New("dispatch: loop stopped")
)

// Logger defines the logging interface used by the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// defaultQueueSize bounds the number of pending tasks. Stack event
// bursts (a coordinated set reconnecting fans out several events per
// member) stay far below this.
const defaultQueueSize = 256

// Loop is a single-goroutine task queue.
//
// Post and PostDelayed are safe from any goroutine. Run must be called
// exactly once; it drains tasks until the context is cancelled.
type Loop struct {
	tasks  chan func()
	done   chan struct{}
	once   sync.Once
	logger Logger
}

// NewLoop creates a loop with the default queue size.
func NewLoop() *Loop {
	return &Loop{
		tasks:  make(chan func(), defaultQueueSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// Run drains the queue until ctx is cancelled. Tasks already queued
// when cancellation arrives are dropped. A panicking task is recovered
// and logged; the loop stays alive.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			l.safeRun(task)
		}
	}
}

// Post queues fn for execution on the loop.
//
// Returns:
//   - error: ErrStopped if the loop has exited, ErrQueueFull if the
//     queue is saturated
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	default:
		return ErrQueueFull
	}
}

// PostDelayed schedules fn to run on the loop after d. The returned
// cancel function stops a timer that has not fired yet; cancelling is
// idempotent and safe after the timer fires.
func (l *Loop) PostDelayed(d time.Duration, fn func()) (cancel func()) {
	timer := time.AfterFunc(d, func() {
		if err := l.Post(fn); err != nil {
			l.logger.Warn("delayed task dropped", "error", err)
		}
	})
	return func() { timer.Stop() }
}

// Call posts fn and blocks until it has run, or until ctx is cancelled.
// Used by request/response callers (API handlers) that need the result
// of loop-owned work.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	err := l.Post(func() {
		defer close(ran)
		fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// safeRun executes one task, recovering a panic so a single bad event
// cannot take the whole engine down.
func (l *Loop) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
		}
	}()
	task()
}
