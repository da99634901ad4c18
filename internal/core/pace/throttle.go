package pace

import (
	"context"
	"sync"
	"time"
)

// Throttler invokes its callback at most once per window. The first call
// always passes; a later call passes only when strictly more than window has
// elapsed since the last call that passed. Calls inside the window are
// dropped, never queued.
type Throttler[T any] struct {
	fn     func(context.Context, T)
	window time.Duration
	opts   options

	mu    sync.Mutex
	fired bool
	last  time.Time
}

// NewThrottler wraps fn. A negative window is treated as zero.
func NewThrottler[T any](fn func(context.Context, T), window time.Duration, opts ...Option) *Throttler[T] {
	if fn == nil {
		panic("pace: nil throttle callback")
	}
	return &Throttler[T]{
		fn:     fn,
		window: clampWindow(window),
		opts:   buildOptions(opts),
	}
}

// Throttle returns fn wrapped in a Throttler, as a plain function.
func Throttle[T any](fn func(context.Context, T), window time.Duration, opts ...Option) func(context.Context, T) {
	t := NewThrottler(fn, window, opts...)
	return func(ctx context.Context, arg T) { t.Call(ctx, arg) }
}

// Call runs the callback synchronously with ctx and arg when the window
// allows it and reports whether it did. Panics raised by the callback reach
// the caller unchanged.
func (t *Throttler[T]) Call(ctx context.Context, arg T) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	now := t.opts.clock.Now()
	if t.fired && now.Sub(t.last) <= t.window {
		t.mu.Unlock()
		t.opts.emit(KindThrottle, OutcomeDropped, now)
		return false
	}
	t.fired = true
	t.last = now
	t.mu.Unlock()

	t.opts.emit(KindThrottle, OutcomeFired, now)
	t.fn(ctx, arg)
	return true
}

// Reset forgets the last accepted call so the next call passes.
func (t *Throttler[T]) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fired = false
	t.last = time.Time{}
}

// LastFired returns the time of the last accepted call.
func (t *Throttler[T]) LastFired() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.fired
}

// Window returns the configured window.
func (t *Throttler[T]) Window() time.Duration {
	return t.window
}
