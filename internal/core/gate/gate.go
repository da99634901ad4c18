// Package gate applies a pace wrapper to a named stream of keyed events and
// delivers the events that survive to a Sink.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
	"github.com/pacerhq/pacer/internal/metrics"
)

// DefaultMaxKeys bounds the per-gate key table when a spec leaves it unset.
const DefaultMaxKeys = 10000

var (
	ErrUnknownGate  = errors.New("unknown gate")
	ErrClosed       = errors.New("gate is closed")
	ErrInvalidEvent = errors.New("invalid event")
	ErrWindowStore  = errors.New("shared window store unavailable")
)

// Sink receives the events a gate lets through.
type Sink interface {
	Deliver(ctx context.Context, f core.Firing) error
}

// Spec configures a gate.
type Spec struct {
	Name    string        `json:"name"`
	Kind    pace.Kind     `json:"kind"`
	Window  time.Duration `json:"window"`
	MaxKeys int           `json:"max_keys"`
	// Shared makes a throttle gate claim its windows from the WindowStore so
	// several relay instances throttle as one.
	Shared bool `json:"shared"`
}

// Validate reports whether the gate settings are usable.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("gate name is required")
	}
	if strings.ContainsAny(s.Name, "/ ") {
		return fmt.Errorf("gate %q: name must not contain spaces or slashes", s.Name)
	}
	if _, err := pace.ParseKind(string(s.Kind)); err != nil {
		return fmt.Errorf("gate %q: %w", s.Name, err)
	}
	if s.Window <= 0 {
		return fmt.Errorf("gate %q: window must be positive", s.Name)
	}
	if s.MaxKeys < 0 {
		return fmt.Errorf("gate %q: max_keys must not be negative", s.Name)
	}
	if s.Shared && s.Kind != pace.KindThrottle {
		return fmt.Errorf("gate %q: only throttle gates can share windows", s.Name)
	}
	return nil
}

type options struct {
	sink            Sink
	windows         WindowStore
	clock           pace.Clock
	logger          *logging.Logger
	deliveryTimeout time.Duration
}

// Option configures a Gate or a Registry.
type Option func(*options)

func WithSink(s Sink) Option {
	return func(o *options) { o.sink = s }
}

func WithWindowStore(ws WindowStore) Option {
	return func(o *options) { o.windows = ws }
}

func WithClock(c pace.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDeliveryTimeout bounds each sink delivery. Zero leaves it to the sinks.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o *options) { o.deliveryTimeout = d }
}

// Gate shapes one stream of events. Each key gets its own wrapper.
type Gate struct {
	spec Spec
	opts options

	mu     sync.Mutex
	closed bool
	keys   *lru.Cache[string, shaper]
}

// New builds a gate from a validated spec.
func New(spec Spec, opts ...Option) (*Gate, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.MaxKeys == 0 {
		spec.MaxKeys = DefaultMaxKeys
	}
	if spec.Shared {
		check := options{}
		for _, opt := range opts {
			opt(&check)
		}
		if check.windows == nil {
			return nil, fmt.Errorf("gate %q: shared windows require a window store", spec.Name)
		}
	}

	g := &Gate{spec: spec, opts: options{clock: pace.SystemClock()}}
	for _, opt := range opts {
		opt(&g.opts)
	}

	keys, err := lru.NewWithEvict(spec.MaxKeys, func(key string, s shaper) {
		if s.cancel() && g.opts.logger != nil {
			g.opts.logger.Debug("Evicted key with pending event",
				zap.String("gate", spec.Name),
				zap.String("key", key))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("gate %q: key table: %w", spec.Name, err)
	}
	g.keys = keys
	return g, nil
}

// Spec returns the gate configuration.
func (g *Gate) Spec() Spec {
	return g.spec
}

// Submit routes ev through the wrapper for its key. Missing IDs and receive
// times are filled in.
func (g *Gate) Submit(ctx context.Context, ev core.Event) (core.Decision, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(ev.Key) == "" {
		return core.Decision{}, fmt.Errorf("%w: key is required", ErrInvalidEvent)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = g.opts.clock.Now().UTC()
	}
	ev.Gate = g.spec.Name

	decision := core.Decision{EventID: ev.ID, Gate: g.spec.Name, Key: ev.Key}

	if g.spec.Shared {
		outcome, err := g.submitShared(ctx, ev)
		if err != nil {
			return core.Decision{}, err
		}
		decision.Outcome = outcome
		return decision, nil
	}

	s, err := g.shaperFor(ev.Key)
	if err != nil {
		return core.Decision{}, err
	}
	decision.Outcome = s.submit(ctx, ev)
	return decision, nil
}

func (g *Gate) submitShared(ctx context.Context, ev core.Event) (pace.Outcome, error) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return "", ErrClosed
	}

	ok, err := g.opts.windows.Acquire(ctx, g.spec.Name+":"+ev.Key, g.spec.Window)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWindowStore, err)
	}
	outcome := pace.OutcomeDropped
	if ok {
		outcome = pace.OutcomeFired
	}
	metrics.RecordGateOutcome(g.spec.Name, string(g.spec.Kind), string(outcome))
	if ok {
		g.deliver(ctx, ev)
	}
	return outcome, nil
}

func (g *Gate) shaperFor(key string) (shaper, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	if s, ok := g.keys.Get(key); ok {
		return s, nil
	}
	s := newShaper(g.spec, g.deliver, g.wrapperOptions(key)...)
	g.keys.Add(key, s)
	return s, nil
}

func (g *Gate) wrapperOptions(key string) []pace.Option {
	name, kind := g.spec.Name, string(g.spec.Kind)
	return []pace.Option{
		pace.WithClock(g.opts.clock),
		pace.WithName(name + ":" + key),
		pace.WithObserver(pace.ObserverFunc(func(e pace.Event) {
			metrics.RecordGateOutcome(name, kind, string(e.Outcome))
		})),
	}
}

func (g *Gate) deliver(ctx context.Context, ev core.Event) {
	if g.opts.sink == nil {
		return
	}
	f := core.Firing{Event: ev, Kind: g.spec.Kind, FiredAt: g.opts.clock.Now().UTC()}
	// Firings outlive the request that caused them.
	ctx = context.WithoutCancel(ctx)
	if g.opts.deliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.deliveryTimeout)
		defer cancel()
	}
	if err := g.opts.sink.Deliver(ctx, f); err != nil && g.opts.logger != nil {
		g.opts.logger.Warn("Sink delivery failed",
			zap.String("gate", g.spec.Name),
			zap.String("key", ev.Key),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// Flush delivers the pending event for key right away and reports whether
// there was one.
func (g *Gate) Flush(key string) bool {
	s, ok := g.keys.Peek(key)
	if !ok {
		return false
	}
	return s.flush()
}

// Cancel drops the pending event for key and reports whether there was one.
// The key is forgotten only when an event was dropped, so a throttle window
// stays in force.
func (g *Gate) Cancel(key string) bool {
	s, ok := g.keys.Peek(key)
	if !ok {
		return false
	}
	if !s.cancel() {
		return false
	}
	g.keys.Remove(key)
	return true
}

// Keys lists the keys the gate currently tracks.
func (g *Gate) Keys() []string {
	keys := g.keys.Keys()
	sort.Strings(keys)
	return keys
}

// PendingKeys counts the keys holding an undelivered event.
func (g *Gate) PendingKeys() int {
	n := 0
	for _, s := range g.keys.Values() {
		if s.pending() {
			n++
		}
	}
	return n
}

// Close stops the gate. Pending events are delivered when flush is set and
// dropped otherwise. Submit fails with ErrClosed afterwards.
func (g *Gate) Close(flush bool) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	if flush {
		for _, s := range g.keys.Values() {
			s.flush()
		}
	}
	g.keys.Purge()
}
