package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/pacerhq/pacer/internal/core/pace"
)

var start = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Firing is an invocation of the wrapped function that happened.
type Firing struct {
	At   time.Duration `json:"at"`
	Arg  string        `json:"arg"`
	Call int           `json:"call"`
}

// CallResult records what happened to one call of the scenario.
type CallResult struct {
	Index   int           `json:"index"`
	At      time.Duration `json:"at"`
	Arg     string        `json:"arg"`
	Outcome pace.Outcome  `json:"outcome"`
}

// Report is the result of replaying a scenario.
type Report struct {
	Name    string               `json:"name,omitempty"`
	Kind    pace.Kind            `json:"kind"`
	Window  time.Duration        `json:"window"`
	Firings []Firing             `json:"firings"`
	Calls   []CallResult         `json:"calls"`
	Events  map[pace.Outcome]int `json:"events"`
}

type payload struct {
	index int
	arg   string
}

// Run replays the scenario on a manual clock, then drains every timer still
// outstanding after the last call.
func Run(s Scenario) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	clock := pace.NewManualClock(start)
	report := &Report{
		Name:   s.Name,
		Kind:   s.Kind,
		Window: s.Window,
		Calls:  make([]CallResult, len(s.Calls)),
		Events: map[pace.Outcome]int{},
	}
	for i, c := range s.Calls {
		report.Calls[i] = CallResult{Index: i, At: c.At, Arg: c.Arg}
	}

	fn := func(_ context.Context, p payload) {
		report.Firings = append(report.Firings, Firing{
			At:   clock.Now().Sub(start),
			Arg:  p.arg,
			Call: p.index,
		})
		report.Calls[p.index].Outcome = pace.OutcomeFired
	}
	opts := []pace.Option{
		pace.WithClock(clock),
		pace.WithName(s.Name),
		pace.WithObserver(pace.ObserverFunc(func(e pace.Event) { report.Events[e.Outcome]++ })),
	}

	var call func(context.Context, payload) pace.Outcome
	switch s.Kind {
	case pace.KindThrottle:
		t := pace.NewThrottler(fn, s.Window, opts...)
		call = func(ctx context.Context, p payload) pace.Outcome {
			if t.Call(ctx, p) {
				return pace.OutcomeFired
			}
			return pace.OutcomeDropped
		}
	case pace.KindDebounce:
		d := pace.NewDebouncer(fn, s.Window, opts...)
		call = func(ctx context.Context, p payload) pace.Outcome {
			d.Call(ctx, p)
			return pace.OutcomeScheduled
		}
	case pace.KindCoalesce:
		c := pace.NewCoalescer(fn, s.Window, opts...)
		call = func(ctx context.Context, p payload) pace.Outcome {
			if c.Call(ctx, p) {
				return pace.OutcomeScheduled
			}
			return pace.OutcomeDropped
		}
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrInvalidScenario, s.Kind)
	}

	ctx := context.Background()
	for i, c := range s.Calls {
		clock.Set(start.Add(c.At))
		outcome := call(ctx, payload{index: i, arg: c.Arg})
		// A throttled call has already fired inside call.
		if report.Calls[i].Outcome == "" {
			report.Calls[i].Outcome = outcome
		}
	}
	clock.Drain()

	for i := range report.Calls {
		if report.Calls[i].Outcome == pace.OutcomeScheduled {
			report.Calls[i].Outcome = pace.OutcomeSuperseded
		}
	}
	return report, nil
}

// FiredAt returns the firing offsets in order.
func (r *Report) FiredAt() []time.Duration {
	out := make([]time.Duration, 0, len(r.Firings))
	for _, f := range r.Firings {
		out = append(out, f.At)
	}
	return out
}
