package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/config"
	errwrap "github.com/pacerhq/pacer/internal/errors"
	"github.com/pacerhq/pacer/internal/metrics"
	"github.com/pacerhq/pacer/internal/observability"
	"github.com/pacerhq/pacer/internal/server"
	"github.com/pacerhq/pacer/internal/server/handlers"
)

const defaultShutdownTimeout = 10 * time.Second

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the event relay",
	Long: `Start the HTTP event relay with the gates declared in the config file.

Events are posted to /v1/gates/{gate}/events and delivered to the configured
sinks (log, journal, webhook) when their gate lets them through.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown (pending events are flushed
    when server.flush_on_shutdown is set)
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (gate changes need a restart)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
	}

	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()
	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile, namespace)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	logger.Info("Initializing relay",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("gates", len(cfg.Gates)),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	rl, err := newRelay(ctx, cfg, logger, relayOptions{})
	if err != nil {
		logger.Error("Failed to assemble relay", zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "relay setup failed")
	}

	handlers.InitHealthManager(versionInfo.Version)
	registerHealthChecks(handlers.GetHealthManager(), cfg, identity, rl)
	handlers.SetAppIdentity(identity)

	srv, err := server.New(cfg.Server, rl.registry)
	if err != nil {
		_ = rl.close(false)
		return errwrap.WrapConfigInvalid(ctx, err, "server setup failed")
	}

	registerShutdown(logger, srv, rl, cfg.Server)
	signals.OnReload(func(ctx context.Context) error { return reloadConfig(ctx, logger) })
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errs := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errs <- err
		}
	}()

	if err := <-errs; err != nil {
		_ = rl.close(false)
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

// registerHealthChecks wires the relay's dependencies into the probes.
func registerHealthChecks(hm *handlers.HealthManager, cfg *config.Config, identity *appidentity.Identity, rl *relay) {
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}
	hm.RegisterChecker("app_identity", handlers.CheckerFunc(func(context.Context) error {
		return checkIdentity(identity)
	}))
	if rl.store != nil {
		hm.RegisterChecker("journal", handlers.CheckerFunc(rl.store.Ping))
	}
	if rl.windows != nil {
		hm.RegisterChecker("window_store", handlers.CheckerFunc(rl.windows.Ping))
	}
}

func checkIdentity(identity *appidentity.Identity) error {
	switch {
	case identity == nil:
		return errwrap.NewConfigInvalidError("app identity not loaded")
	case identity.BinaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case identity.EnvPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case identity.ConfigName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

// registerShutdown installs the shutdown hooks. signals runs them in
// reverse order: the HTTP server stops, then the gates close (flushing
// when configured) with their stores, then the loggers sync.
func registerShutdown(logger *logging.Logger, srv *server.Server, rl *relay, sc config.ServerConfig) {
	timeout := sc.ShutdownTimeout
	if timeout == 0 {
		timeout = defaultShutdownTimeout
	}

	signals.OnShutdown(func(ctx context.Context) error {
		if err := observability.SyncLoggers(); err != nil {
			logger.Debug("Logger sync failed", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Closing gates", zap.Bool("flush", sc.FlushOnShutdown))
		if err := rl.close(sc.FlushOnShutdown); err != nil {
			return errwrap.WrapInternal(ctx, err, "relay shutdown failed")
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped")
		return nil
	})
}

// reloadConfig re-reads and validates the config file on SIGHUP. Running
// gates keep their settings until restart.
func reloadConfig(ctx context.Context, logger *logging.Logger) error {
	logger.Info("Received SIGHUP, reloading config")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file found; defaults and environment apply")
			return nil
		}
		logger.Error("Failed to reload config file", zap.String("file", viper.ConfigFileUsed()), zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}
	if _, err := config.Load(ctx); err != nil {
		logger.Error("Reloaded config is invalid", zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	logger.Info("Configuration reloaded; gate changes apply after restart",
		zap.String("file", viper.ConfigFileUsed()))
	return nil
}
