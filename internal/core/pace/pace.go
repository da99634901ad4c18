// Package pace provides call-rate shaping wrappers: a leading-edge throttle, a
// trailing-edge debounce and a frame coalescer. Each wrapper owns its state,
// takes the calling context explicitly and is safe for concurrent use.
package pace

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a wrapper strategy.
type Kind string

const (
	KindThrottle Kind = "throttle"
	KindDebounce Kind = "debounce"
	KindCoalesce Kind = "coalesce"
)

// Kinds lists all supported wrapper kinds.
var Kinds = []Kind{KindThrottle, KindDebounce, KindCoalesce}

// ParseKind validates and normalizes a kind string.
func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case KindThrottle, KindDebounce, KindCoalesce:
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported kind: %q (want throttle|debounce|coalesce)", value)
	}
}

// Outcome describes what a wrapper did with a call or a pending invocation.
type Outcome string

const (
	OutcomeFired      Outcome = "fired"
	OutcomeDropped    Outcome = "dropped"
	OutcomeScheduled  Outcome = "scheduled"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeCancelled  Outcome = "cancelled"
)

// Event is reported to an Observer for every wrapper decision.
type Event struct {
	Name    string
	Kind    Kind
	Outcome Outcome
	At      time.Time
}

// Observer receives wrapper decisions. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type options struct {
	clock    Clock
	observer Observer
	name     string
}

// Option configures a wrapper.
type Option func(*options)

// WithClock replaces the system clock, mostly for tests and simulations.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithObserver registers an observer for wrapper decisions.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithName labels the events a wrapper reports.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

func buildOptions(opts []Option) options {
	o := options{clock: SystemClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) emit(kind Kind, outcome Outcome, at time.Time) {
	if o.observer == nil {
		return
	}
	o.observer.Observe(Event{Name: o.name, Kind: kind, Outcome: outcome, At: at})
}

func clampWindow(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
