package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/appid"
	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// appIdentity comes from .fulmen/app.yaml.
	appIdentity *appidentity.Identity

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records build metadata injected through ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity loaded by initConfig.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Throttle, debounce and coalesce keyed event streams",
	Long: `Shape bursty keyed event streams with throttle, debounce and coalesce gates.

Run "serve" for the HTTP relay, "pipe" to shape JSON lines from stdin, or
"simulate" to see how a wrapper treats a sequence of calls.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading may emit telemetry; keep it off stdout until serve
	// installs the Prometheus exporter.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	// Identity is loaded here as well so --help shows the right name.
	if identity, err := appid.Get(context.Background()); err == nil {
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults to app identity config path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// applyIdentity renames the root command after the app identity.
func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	appIdentity = identity
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity from .fulmen/app.yaml", err)
	}
	applyIdentity(identity)

	observability.InitCLILogger(appIdentity.BinaryName, verbose)
	logger := observability.CLILogger

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if err := addConfigPaths(viper.GetViper(), appIdentity); err != nil {
		ExitWithCode(logger, foundry.ExitFileNotFound, "Could not resolve a config directory", err)
	}

	// Nested keys map to underscores: server.rate_limit.rps becomes
	// PACER_SERVER_RATE_LIMIT_RPS.
	viper.SetEnvPrefix(strings.TrimSuffix(appIdentity.EnvPrefix, "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		logger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	case errors.As(err, &notFound):
		logger.Debug("No config file found, using defaults and environment variables")
	default:
		logger.Warn("Error reading config file", zap.Error(err))
	}

	config.SetDefaults(viper.GetViper())
}

// addConfigPaths registers the XDG config directory for the identity's
// config name, then its binary name, then ./config. Without an XDG
// directory it falls back to ~/.<config-name>.yaml.
func addConfigPaths(v *viper.Viper, identity *appidentity.Identity) error {
	v.SetConfigType("yaml")
	defer v.AddConfigPath("./config")

	dir := gfconfig.GetAppConfigDir(identity.ConfigName)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		v.AddConfigPath(home)
		v.SetConfigName("." + identity.ConfigName)
		return nil
	}

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	if identity.BinaryName != "" && identity.BinaryName != identity.ConfigName {
		if alt := gfconfig.GetAppConfigDir(identity.BinaryName); alt != "" {
			v.AddConfigPath(alt)
		}
	}
	return nil
}
