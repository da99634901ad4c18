package pace

import (
	"context"
	"sync"
	"time"
)

// DefaultFrame approximates one display refresh at 60Hz.
const DefaultFrame = 16 * time.Millisecond

// Coalescer collapses calls into at most one invocation per frame. The first
// call while idle schedules the callback one frame later with its arguments;
// calls made while that invocation is pending or running are dropped.
type Coalescer[T any] struct {
	fn    func(context.Context, T)
	frame time.Duration
	opts  options

	mu      sync.Mutex
	gen     uint64
	ticking bool
	timer   Timer
	pending *invocation[T]
}

// NewCoalescer wraps fn. A non-positive frame falls back to DefaultFrame.
func NewCoalescer[T any](fn func(context.Context, T), frame time.Duration, opts ...Option) *Coalescer[T] {
	if fn == nil {
		panic("pace: nil coalesce callback")
	}
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Coalescer[T]{
		fn:    fn,
		frame: frame,
		opts:  buildOptions(opts),
	}
}

// Call schedules the callback for the next frame unless one is already
// pending, and reports whether it scheduled.
func (c *Coalescer[T]) Call(ctx context.Context, arg T) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	now := c.opts.clock.Now()
	if c.ticking {
		c.mu.Unlock()
		c.opts.emit(KindCoalesce, OutcomeDropped, now)
		return false
	}
	c.ticking = true
	c.gen++
	gen := c.gen
	c.pending = &invocation[T]{ctx: context.WithoutCancel(ctx), arg: arg}
	c.timer = c.opts.clock.AfterFunc(c.frame, func() { c.fire(gen) })
	c.mu.Unlock()

	c.opts.emit(KindCoalesce, OutcomeScheduled, now)
	return true
}

// Cancel drops the pending invocation, if any, and reports whether there was
// one.
func (c *Coalescer[T]) Cancel() bool {
	c.mu.Lock()
	had := c.pending != nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if had {
		c.pending = nil
		c.ticking = false
	}
	c.gen++
	now := c.opts.clock.Now()
	c.mu.Unlock()

	if had {
		c.opts.emit(KindCoalesce, OutcomeCancelled, now)
	}
	return had
}

// Flush runs the pending invocation immediately and reports whether there
// was one.
func (c *Coalescer[T]) Flush() bool {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.mu.Unlock()

	c.run()
	return true
}

// Pending reports whether an invocation is scheduled.
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Frame returns the configured frame length.
func (c *Coalescer[T]) Frame() time.Duration {
	return c.frame
}

func (c *Coalescer[T]) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.pending == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	c.run()
}

// run invokes the pending callback. Calls stay dropped until it returns.
func (c *Coalescer[T]) run() {
	c.mu.Lock()
	inv := c.pending
	c.pending = nil
	now := c.opts.clock.Now()
	c.mu.Unlock()

	if inv == nil {
		return
	}
	defer func() {
		c.mu.Lock()
		c.ticking = false
		c.mu.Unlock()
	}()

	c.opts.emit(KindCoalesce, OutcomeFired, now)
	c.fn(inv.ctx, inv.arg)
}
