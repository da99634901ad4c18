// Package config provides centralized configuration management for pacer.
// Defaults are registered on a viper instance, the user config file and
// PACER_* environment variables override them, and the merged settings are
// decoded into a typed Config.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/pacerhq/pacer/internal/appid"
)

var (
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.flush_on_shutdown", true)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rps", 50.0)
	v.SetDefault("server.rate_limit.burst", 100)
	v.SetDefault("server.rate_limit.max_clients", 10000)

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("coordination.redis.addr", "")
	v.SetDefault("coordination.redis.password", "")
	v.SetDefault("coordination.redis.db", 0)
	v.SetDefault("coordination.redis.prefix", "pacer:window:")

	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.journal", true)
	v.SetDefault("sinks.webhook.url", "")
	v.SetDefault("sinks.webhook.timeout", "10s")
	v.SetDefault("sinks.webhook.max_retries", 3)
	v.SetDefault("sinks.webhook.retry_wait_min", "200ms")
	v.SetDefault("sinks.webhook.retry_wait_max", "5s")

	v.SetDefault("gates", []map[string]any{})
}

// Load decodes the global viper settings, validates them and stores the
// result for GetConfig. SIGHUP reloads call it again.
func Load(ctx context.Context) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	cfg, err := LoadFrom(viper.GetViper())
	if err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// LoadFrom decodes and validates the settings held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the config stored by the last successful Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// identityName returns the identity's config or binary name, "pacer" until
// an identity is loaded.
func identityName(binary bool) string {
	name := ""
	if appIdentity != nil {
		name = appIdentity.ConfigName
		if binary {
			name = appIdentity.BinaryName
		}
	}
	if name = strings.TrimSpace(name); name == "" {
		return "pacer"
	}
	return name
}

// DefaultConfigPath is config.yaml in the XDG config directory, or "" when
// that directory cannot be resolved.
func DefaultConfigPath() string {
	if dir := gfconfig.GetAppConfigDir(identityName(false)); strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return ""
}

// DefaultDataDir is the XDG data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(identityName(false))
}

// DefaultStorePath places <binary>.db in the data directory, or in the
// working directory when there is none.
func DefaultStorePath() string {
	file := identityName(true) + ".db"
	if dir := DefaultDataDir(); strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, file)
	}
	return "./" + file
}
