package gate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	firings []core.Firing
	err     error
}

func (s *recordingSink) Deliver(_ context.Context, f core.Firing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firings = append(s.firings, f)
	return s.err
}

func (s *recordingSink) payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.firings))
	for _, f := range s.firings {
		out = append(out, f.Event.Key+"="+string(f.Event.Payload))
	}
	return out
}

func event(key, payload string) core.Event {
	return core.Event{Key: key, Payload: json.RawMessage(payload)}
}

func newTestGate(t *testing.T, spec Spec, opts ...Option) (*Gate, *pace.ManualClock, *recordingSink) {
	t.Helper()
	clock := pace.NewManualClock(epoch)
	sink := &recordingSink{}
	opts = append([]Option{WithClock(clock), WithSink(sink)}, opts...)
	g, err := New(spec, opts...)
	require.NoError(t, err)
	return g, clock, sink
}

func TestThrottleGateKeysAreIndependent(t *testing.T) {
	g, clock, sink := newTestGate(t, Spec{Name: "clicks", Kind: pace.KindThrottle, Window: 100 * time.Millisecond})
	ctx := context.Background()

	d, err := g.Submit(ctx, event("a", `1`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)
	assert.Equal(t, "clicks", d.Gate)
	assert.NotEmpty(t, d.EventID)

	d, err = g.Submit(ctx, event("a", `2`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeDropped, d.Outcome)

	d, err = g.Submit(ctx, event("b", `3`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)

	clock.Advance(150 * time.Millisecond)
	_, err = g.Submit(ctx, event("a", `4`))
	require.NoError(t, err)

	assert.Equal(t, []string{"a=1", "b=3", "a=4"}, sink.payloads())
	assert.Equal(t, []string{"a", "b"}, g.Keys())
}

func TestDebounceGateDeliversLastEvent(t *testing.T) {
	g, clock, sink := newTestGate(t, Spec{Name: "search", Kind: pace.KindDebounce, Window: 100 * time.Millisecond})
	ctx := context.Background()

	for i, payload := range []string{`"h"`, `"he"`, `"hel"`} {
		clock.Set(epoch.Add(time.Duration(i*30) * time.Millisecond))
		d, err := g.Submit(ctx, event("user-1", payload))
		require.NoError(t, err)
		assert.Equal(t, pace.OutcomeScheduled, d.Outcome)
	}
	assert.Empty(t, sink.payloads())
	assert.Equal(t, 1, g.PendingKeys())

	clock.Drain()
	assert.Equal(t, []string{`user-1="hel"`}, sink.payloads())

	f := sink.firings[0]
	assert.Equal(t, epoch.Add(160*time.Millisecond), f.FiredAt)
	assert.Equal(t, epoch.Add(60*time.Millisecond), f.Event.ReceivedAt)
	assert.Equal(t, 100*time.Millisecond, f.Latency())
	assert.Equal(t, pace.KindDebounce, f.Kind)
}

func TestGateFlushAndCancel(t *testing.T) {
	g, clock, sink := newTestGate(t, Spec{Name: "save", Kind: pace.KindDebounce, Window: time.Second})
	ctx := context.Background()

	_, err := g.Submit(ctx, event("doc-1", `1`))
	require.NoError(t, err)
	_, err = g.Submit(ctx, event("doc-2", `2`))
	require.NoError(t, err)

	assert.True(t, g.Flush("doc-1"))
	assert.False(t, g.Flush("doc-1"))
	assert.False(t, g.Flush("missing"))

	assert.True(t, g.Cancel("doc-2"))
	assert.False(t, g.Cancel("doc-2"))
	assert.Equal(t, []string{"doc-1"}, g.Keys())

	clock.Drain()
	assert.Equal(t, []string{"doc-1=1"}, sink.payloads())
}

func TestThrottleWindowSurvivesCancel(t *testing.T) {
	g, clock, sink := newTestGate(t, Spec{Name: "clicks", Kind: pace.KindThrottle, Window: time.Second})
	ctx := context.Background()

	d, err := g.Submit(ctx, event("btn", `1`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)

	assert.False(t, g.Cancel("btn"))
	assert.Equal(t, []string{"btn"}, g.Keys())

	d, err = g.Submit(ctx, event("btn", `2`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeDropped, d.Outcome)

	clock.Advance(time.Second + time.Millisecond)
	d, err = g.Submit(ctx, event("btn", `3`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)
	assert.Equal(t, []string{"btn=1", "btn=3"}, sink.payloads())
}

type contextSink struct {
	err      error
	deadline time.Time
	bounded  bool
}

func (s *contextSink) Deliver(ctx context.Context, _ core.Firing) error {
	s.err = ctx.Err()
	s.deadline, s.bounded = ctx.Deadline()
	return nil
}

func TestGateDeliveryOutlivesRequestContext(t *testing.T) {
	sink := &contextSink{}
	g, err := New(Spec{Name: "clicks", Kind: pace.KindThrottle, Window: time.Second},
		WithClock(pace.NewManualClock(epoch)), WithSink(sink))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := g.Submit(ctx, event("btn", `1`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)
	assert.NoError(t, sink.err)
	assert.False(t, sink.bounded)
}

func TestGateDeliveryTimeout(t *testing.T) {
	sink := &contextSink{}
	g, err := New(Spec{Name: "clicks", Kind: pace.KindThrottle, Window: time.Second},
		WithClock(pace.NewManualClock(epoch)), WithSink(sink), WithDeliveryTimeout(time.Minute))
	require.NoError(t, err)

	before := time.Now()
	_, err = g.Submit(context.Background(), event("btn", `1`))
	require.NoError(t, err)
	require.True(t, sink.bounded)
	assert.WithinDuration(t, before.Add(time.Minute), sink.deadline, 5*time.Second)
}

func TestGateEvictionCancelsPending(t *testing.T) {
	g, clock, sink := newTestGate(t, Spec{Name: "tiny", Kind: pace.KindDebounce, Window: time.Second, MaxKeys: 1})
	ctx := context.Background()

	_, err := g.Submit(ctx, event("a", `1`))
	require.NoError(t, err)
	_, err = g.Submit(ctx, event("b", `2`))
	require.NoError(t, err)

	clock.Drain()
	assert.Equal(t, []string{"b=2"}, sink.payloads())
	assert.Equal(t, []string{"b"}, g.Keys())
}

func TestGateCloseFlushesAndRejects(t *testing.T) {
	g, _, sink := newTestGate(t, Spec{Name: "frames", Kind: pace.KindCoalesce, Window: 16 * time.Millisecond})
	ctx := context.Background()

	d, err := g.Submit(ctx, event("canvas", `1`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeScheduled, d.Outcome)
	d, err = g.Submit(ctx, event("canvas", `2`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeDropped, d.Outcome)

	g.Close(true)
	assert.Equal(t, []string{"canvas=1"}, sink.payloads())

	_, err = g.Submit(ctx, event("canvas", `3`))
	require.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, g.Keys())
}

func TestGateSinkErrorDoesNotFailSubmit(t *testing.T) {
	g, _, sink := newTestGate(t, Spec{Name: "clicks", Kind: pace.KindThrottle, Window: time.Second})
	sink.err = errors.New("downstream unavailable")

	d, err := g.Submit(context.Background(), event("a", `1`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)
}

func TestGateRejectsEmptyKey(t *testing.T) {
	g, _, _ := newTestGate(t, Spec{Name: "clicks", Kind: pace.KindThrottle, Window: time.Second})
	_, err := g.Submit(context.Background(), event(" ", `1`))
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{name: "missing name", spec: Spec{Kind: pace.KindThrottle, Window: time.Second}},
		{name: "slash in name", spec: Spec{Name: "a/b", Kind: pace.KindThrottle, Window: time.Second}},
		{name: "unknown kind", spec: Spec{Name: "a", Kind: "leading", Window: time.Second}},
		{name: "zero window", spec: Spec{Name: "a", Kind: pace.KindDebounce}},
		{name: "negative keys", spec: Spec{Name: "a", Kind: pace.KindDebounce, Window: time.Second, MaxKeys: -1}},
		{name: "shared debounce", spec: Spec{Name: "a", Kind: pace.KindDebounce, Window: time.Second, Shared: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.spec.Validate())
		})
	}

	_, err := New(Spec{Name: "a", Kind: pace.KindThrottle, Window: time.Second, Shared: true})
	require.Error(t, err, "shared gate without a window store")
}

func TestSharedThrottleAcrossInstances(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisWindowStore(client, "")
	require.NoError(t, store.Ping(context.Background()))

	spec := Spec{Name: "webhooks", Kind: pace.KindThrottle, Window: time.Second, Shared: true}
	first, _, firstSink := newTestGate(t, spec, WithWindowStore(store))
	second, _, secondSink := newTestGate(t, spec, WithWindowStore(store))
	ctx := context.Background()

	d, err := first.Submit(ctx, event("tenant-1", `1`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)

	d, err = second.Submit(ctx, event("tenant-1", `2`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeDropped, d.Outcome)

	d, err = second.Submit(ctx, event("tenant-2", `3`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)

	server.FastForward(time.Second)
	d, err = second.Submit(ctx, event("tenant-1", `4`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeDropped, d.Outcome, "boundary stays inside the window")

	server.FastForward(10 * time.Millisecond)
	d, err = second.Submit(ctx, event("tenant-1", `5`))
	require.NoError(t, err)
	assert.Equal(t, pace.OutcomeFired, d.Outcome)

	assert.Equal(t, []string{"tenant-1=1"}, firstSink.payloads())
	assert.Equal(t, []string{"tenant-2=3", "tenant-1=5"}, secondSink.payloads())
}

func TestSharedThrottleStoreFailure(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	g, _, _ := newTestGate(t, Spec{Name: "webhooks", Kind: pace.KindThrottle, Window: time.Second, Shared: true},
		WithWindowStore(NewRedisWindowStore(client, "")))

	server.Close()
	_, err := g.Submit(context.Background(), event("tenant-1", `1`))
	require.ErrorIs(t, err, ErrWindowStore)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry([]Spec{
		{Name: "search", Kind: pace.KindDebounce, Window: time.Second},
		{Name: "clicks", Kind: pace.KindThrottle, Window: time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"clicks", "search"}, r.Names())

	g, err := r.Get("search")
	require.NoError(t, err)
	assert.Equal(t, pace.KindDebounce, g.Spec().Kind)
	assert.Equal(t, DefaultMaxKeys, g.Spec().MaxKeys)

	_, err = r.Get("missing")
	require.ErrorIs(t, err, ErrUnknownGate)

	_, err = NewRegistry([]Spec{
		{Name: "dup", Kind: pace.KindThrottle, Window: time.Second},
		{Name: "dup", Kind: pace.KindThrottle, Window: time.Second},
	})
	require.Error(t, err)

	r.Close(false)
	_, err = g.Submit(context.Background(), event("k", `1`))
	require.ErrorIs(t, err, ErrClosed)
}
