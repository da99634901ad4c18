// Package sink delivers fired events to their destinations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/metrics"
)

// Sink is a named delivery target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, f core.Firing) error
}

// Multi fans a firing out to every sink. Each delivery is timed and counted;
// failures are joined into the returned error after every sink was tried.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Deliver(ctx context.Context, f core.Firing) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		start := time.Now()
		err := s.Deliver(ctx, f)
		metrics.RecordSinkDelivery(s.Name(), err == nil, time.Since(start))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each firing to a logger.
type LogSink struct {
	Logger *logging.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, f core.Firing) error {
	if s.Logger == nil {
		return errors.New("log sink has no logger")
	}
	s.Logger.Info("Event fired",
		zap.String("gate", f.Event.Gate),
		zap.String("key", f.Event.Key),
		zap.String("event_id", f.Event.ID),
		zap.String("kind", string(f.Kind)),
		zap.Duration("latency", f.Latency()),
		zap.String("request_id", f.Event.RequestID))
	return nil
}

// Recorder persists firings.
type Recorder interface {
	RecordFiring(ctx context.Context, f core.Firing) error
}

// JournalSink records firings in the journal store.
type JournalSink struct {
	Recorder Recorder
}

func (s JournalSink) Name() string { return "journal" }

func (s JournalSink) Deliver(ctx context.Context, f core.Firing) error {
	if s.Recorder == nil {
		return errors.New("journal sink has no store")
	}
	return s.Recorder.RecordFiring(ctx, f)
}

// Func adapts a function to a Sink.
type Func struct {
	Label string
	Fn    func(context.Context, core.Firing) error
}

func (s Func) Name() string { return s.Label }

func (s Func) Deliver(ctx context.Context, f core.Firing) error {
	return s.Fn(ctx, f)
}
