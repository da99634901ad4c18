package gate

import (
	"context"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
)

// shaper is the per-key wrapper of a gate.
type shaper interface {
	submit(ctx context.Context, ev core.Event) pace.Outcome
	flush() bool
	cancel() bool
	pending() bool
}

type deliverFunc func(context.Context, core.Event)

func newShaper(spec Spec, fn deliverFunc, opts ...pace.Option) shaper {
	switch spec.Kind {
	case pace.KindDebounce:
		return debounceShaper{pace.NewDebouncer[core.Event](fn, spec.Window, opts...)}
	case pace.KindCoalesce:
		return coalesceShaper{pace.NewCoalescer[core.Event](fn, spec.Window, opts...)}
	default:
		return throttleShaper{pace.NewThrottler[core.Event](fn, spec.Window, opts...)}
	}
}

type throttleShaper struct{ t *pace.Throttler[core.Event] }

func (s throttleShaper) submit(ctx context.Context, ev core.Event) pace.Outcome {
	if s.t.Call(ctx, ev) {
		return pace.OutcomeFired
	}
	return pace.OutcomeDropped
}

func (throttleShaper) flush() bool   { return false }
func (throttleShaper) cancel() bool  { return false }
func (throttleShaper) pending() bool { return false }

type debounceShaper struct{ d *pace.Debouncer[core.Event] }

func (s debounceShaper) submit(ctx context.Context, ev core.Event) pace.Outcome {
	s.d.Call(ctx, ev)
	return pace.OutcomeScheduled
}

func (s debounceShaper) flush() bool   { return s.d.Flush() }
func (s debounceShaper) cancel() bool  { return s.d.Cancel() }
func (s debounceShaper) pending() bool { return s.d.Pending() }

type coalesceShaper struct{ c *pace.Coalescer[core.Event] }

func (s coalesceShaper) submit(ctx context.Context, ev core.Event) pace.Outcome {
	if s.c.Call(ctx, ev) {
		return pace.OutcomeScheduled
	}
	return pace.OutcomeDropped
}

func (s coalesceShaper) flush() bool   { return s.c.Flush() }
func (s coalesceShaper) cancel() bool  { return s.c.Cancel() }
func (s coalesceShaper) pending() bool { return s.c.Pending() }
