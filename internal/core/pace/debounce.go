package pace

import (
	"context"
	"sync"
	"time"
)

// Debouncer invokes its callback once, delay after the last call of a burst.
// Each call replaces the pending invocation; only the latest arguments
// survive.
type Debouncer[T any] struct {
	fn    func(context.Context, T)
	delay time.Duration
	opts  options

	mu      sync.Mutex
	gen     uint64
	timer   Timer
	pending *invocation[T]
}

type invocation[T any] struct {
	ctx context.Context
	arg T
}

// NewDebouncer wraps fn. A negative delay is treated as zero.
func NewDebouncer[T any](fn func(context.Context, T), delay time.Duration, opts ...Option) *Debouncer[T] {
	if fn == nil {
		panic("pace: nil debounce callback")
	}
	return &Debouncer[T]{
		fn:    fn,
		delay: clampWindow(delay),
		opts:  buildOptions(opts),
	}
}

// Debounce returns fn wrapped in a Debouncer, as a plain function.
func Debounce[T any](fn func(context.Context, T), delay time.Duration, opts ...Option) func(context.Context, T) {
	d := NewDebouncer(fn, delay, opts...)
	return func(ctx context.Context, arg T) { d.Call(ctx, arg) }
}

// Call schedules the callback with ctx and arg after the delay, cancelling any
// invocation still pending from an earlier call. It reports whether a pending
// invocation was superseded.
//
// The deferred invocation receives context.WithoutCancel(ctx): values carried
// by ctx reach the callback, its cancellation does not.
func (d *Debouncer[T]) Call(ctx context.Context, arg T) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	superseded := d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = &invocation[T]{ctx: context.WithoutCancel(ctx), arg: arg}
	d.timer = d.opts.clock.AfterFunc(d.delay, func() { d.fire(gen) })
	now := d.opts.clock.Now()
	d.mu.Unlock()

	if superseded {
		d.opts.emit(KindDebounce, OutcomeSuperseded, now)
	}
	d.opts.emit(KindDebounce, OutcomeScheduled, now)
	return superseded
}

// Cancel drops the pending invocation, if any, and reports whether there was
// one.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	cancelled := d.stopLocked()
	d.gen++
	now := d.opts.clock.Now()
	d.mu.Unlock()

	if cancelled {
		d.opts.emit(KindDebounce, OutcomeCancelled, now)
	}
	return cancelled
}

// Flush runs the pending invocation immediately on the calling goroutine and
// reports whether there was one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	inv := d.pending
	d.stopLocked()
	d.gen++
	now := d.opts.clock.Now()
	d.mu.Unlock()

	if inv == nil {
		return false
	}
	d.opts.emit(KindDebounce, OutcomeFired, now)
	d.fn(inv.ctx, inv.arg)
	return true
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Delay returns the configured delay.
func (d *Debouncer[T]) Delay() time.Duration {
	return d.delay
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// A timer that lost the race against Call, Cancel or Flush is stale.
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	inv := d.pending
	d.pending = nil
	d.timer = nil
	now := d.opts.clock.Now()
	d.mu.Unlock()

	d.opts.emit(KindDebounce, OutcomeFired, now)
	d.fn(inv.ctx, inv.arg)
}

// stopLocked clears the pending invocation and reports whether one existed.
func (d *Debouncer[T]) stopLocked() bool {
	had := d.pending != nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	return had
}
