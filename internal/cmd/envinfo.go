package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, gate and sink information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		log.Info("=== Pacer Environment Information ===")
		log.Info("")

		identity := GetAppIdentity()
		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		log.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		log.Info(fmt.Sprintf("  Flush on Stop:  %t", cfg.Server.FlushOnShutdown))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		log.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			log.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		log.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		log.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		log.Info("")

		rl := cfg.Server.RateLimit
		log.Info("Ingress Limit:")
		log.Info(fmt.Sprintf("  Enabled:        %t", rl.Enabled), zap.Bool("rate_limit_enabled", rl.Enabled))
		if rl.Enabled {
			log.Info(fmt.Sprintf("  RPS / Burst:    %g / %d", rl.RPS, rl.Burst))
		}
		log.Info("")

		log.Info(fmt.Sprintf("Gates (%d):", len(cfg.Gates)))
		for _, g := range cfg.Gates {
			line := fmt.Sprintf("  %s: %s %s", g.Name, g.Kind, g.Window)
			if g.Shared {
				line += " (shared)"
			}
			log.Info(line)
		}
		log.Info("")

		log.Info("Sinks:")
		log.Info(fmt.Sprintf("  Log:            %t", cfg.Sinks.Log))
		log.Info(fmt.Sprintf("  Journal:        %t", cfg.Sinks.Journal))
		if hook := strings.TrimSpace(cfg.Sinks.Webhook.URL); hook != "" {
			log.Info("  Webhook:        " + hook)
		} else {
			log.Info("  Webhook:        (not set)")
		}
		if cfg.Coordination.Redis.Enabled() {
			log.Info("  Shared Windows: " + cfg.Coordination.Redis.Addr)
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
