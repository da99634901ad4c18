package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/sink"
	"github.com/pacerhq/pacer/internal/core/store"
)

// relay owns everything a running gate registry depends on.
type relay struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *store.Store
	windows  *gate.RedisWindowStore
	sinks    sink.Multi
	registry *gate.Registry

	deliveryTimeout time.Duration
}

type relayOptions struct {
	// extra sinks receive firings in addition to the configured ones
	extra []sink.Sink
	// skipConfigured ignores sinks.log and sinks.webhook
	skipConfigured bool
}

func newRelay(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts relayOptions) (*relay, error) {
	specs, err := cfg.GateSpecs()
	if err != nil {
		return nil, err
	}

	r := &relay{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			r.close(false)
		}
	}()

	if cfg.Sinks.Journal {
		db, err := openStoreWith(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		r.store = db
		r.sinks = append(r.sinks, sink.JournalSink{Recorder: db})
	}

	if !opts.skipConfigured {
		if cfg.Sinks.Log && logger != nil {
			r.sinks = append(r.sinks, sink.LogSink{Logger: logger})
		}
		if hook := cfg.Sinks.Webhook; strings.TrimSpace(hook.URL) != "" {
			ws, err := sink.NewWebhookSink(sink.WebhookConfig{
				URL:          hook.URL,
				Headers:      hook.Headers,
				Timeout:      hook.Timeout,
				MaxRetries:   hook.MaxRetries,
				RetryWaitMin: hook.RetryWaitMin,
				RetryWaitMax: hook.RetryWaitMax,
				UserAgent:    userAgent(),
			})
			if err != nil {
				return nil, err
			}
			r.sinks = append(r.sinks, ws)
			r.deliveryTimeout = ws.Budget()
		}
	}
	r.sinks = append(r.sinks, opts.extra...)

	gateOpts := []gate.Option{gate.WithSink(r.sinks), gate.WithDeliveryTimeout(r.deliveryTimeout)}
	if logger != nil {
		gateOpts = append(gateOpts, gate.WithLogger(logger))
	}
	if rc := cfg.Coordination.Redis; rc.Enabled() {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{rc.Addr},
			Password: rc.Password,
			DB:       rc.DB,
		})
		r.windows = gate.NewRedisWindowStore(client, rc.Prefix)
		gateOpts = append(gateOpts, gate.WithWindowStore(r.windows))
	}

	registry, err := gate.NewRegistry(specs, gateOpts...)
	if err != nil {
		return nil, err
	}
	r.registry = registry

	if logger != nil {
		names := make([]string, 0, len(r.sinks))
		for _, s := range r.sinks {
			names = append(names, s.Name())
		}
		logger.Info("Relay ready",
			zap.Strings("gates", registry.Names()),
			zap.Strings("sinks", names),
			zap.Bool("shared_windows", r.windows != nil))
	}

	ok = true
	return r, nil
}

// close stops the gates, then releases the window store and journal.
func (r *relay) close(flush bool) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.registry != nil {
		r.registry.Close(flush)
	}
	if r.windows != nil {
		if err := r.windows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close window store: %w", err))
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

func userAgent() string {
	name := "pacer"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}
	version := versionInfo.Version
	if version == "" {
		version = "dev"
	}
	return name + "/" + version
}
