package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/pace"
)

// Config represents the complete application configuration. Values come from
// built-in defaults, then the user config file, then PACER_* environment
// variables and flags.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Health       HealthConfig       `mapstructure:"health"`
	Gates        []GateConfig       `mapstructure:"gates"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Sinks        SinksConfig        `mapstructure:"sinks"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`

	// FlushOnShutdown delivers pending debounced and coalesced events
	// before the relay exits instead of dropping them.
	FlushOnShutdown bool `mapstructure:"flush_on_shutdown"`
}

// Addr is the listen address, host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// RateLimitConfig configures the per-client ingress token bucket.
type RateLimitConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	RPS        float64 `mapstructure:"rps"`
	Burst      int     `mapstructure:"burst"`
	MaxClients int     `mapstructure:"max_clients"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated Prometheus exporter port. The main HTTP port
	// proxies it at /metrics.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// GateConfig declares one gate.
type GateConfig struct {
	Name    string        `mapstructure:"name"`
	Kind    string        `mapstructure:"kind"`
	Window  time.Duration `mapstructure:"window"`
	MaxKeys int           `mapstructure:"max_keys"`
	Shared  bool          `mapstructure:"shared"`
}

// Spec converts the declaration into a validated gate spec.
func (g GateConfig) Spec() (gate.Spec, error) {
	kind, err := pace.ParseKind(g.Kind)
	if err != nil {
		return gate.Spec{}, fmt.Errorf("gate %q: %w", g.Name, err)
	}
	spec := gate.Spec{
		Name:    strings.TrimSpace(g.Name),
		Kind:    kind,
		Window:  g.Window,
		MaxKeys: g.MaxKeys,
		Shared:  g.Shared,
	}
	return spec, spec.Validate()
}

// CoordinationConfig configures state shared between relay instances.
type CoordinationConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig points at the Redis server holding shared throttle windows.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Enabled reports whether an address is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// SinksConfig selects where fired events go.
type SinksConfig struct {
	Log     bool          `mapstructure:"log"`
	Journal bool          `mapstructure:"journal"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig configures the webhook sink. An empty URL disables it.
type WebhookConfig struct {
	URL          string            `mapstructure:"url"`
	Headers      map[string]string `mapstructure:"headers"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	MaxRetries   int               `mapstructure:"max_retries"`
	RetryWaitMin time.Duration     `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration     `mapstructure:"retry_wait_max"`
}

// GateSpecs converts every gate declaration.
func (c *Config) GateSpecs() ([]gate.Spec, error) {
	specs := make([]gate.Spec, 0, len(c.Gates))
	for _, g := range c.Gates {
		spec, err := g.Spec()
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Validate checks values the relay cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes must not be negative"))
	}
	if rl := c.Server.RateLimit; rl.Enabled {
		if rl.RPS <= 0 {
			errs = append(errs, errors.New("server.rate_limit.rps must be positive"))
		}
		if rl.Burst < 1 {
			errs = append(errs, errors.New("server.rate_limit.burst must be at least 1"))
		}
	}

	seen := map[string]bool{}
	shared := false
	for _, g := range c.Gates {
		spec, err := g.Spec()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, fmt.Errorf("gate %q is configured twice", spec.Name))
		}
		seen[spec.Name] = true
		shared = shared || spec.Shared
	}
	if shared && !c.Coordination.Redis.Enabled() {
		errs = append(errs, errors.New("shared gates require coordination.redis.addr"))
	}

	if raw := strings.TrimSpace(c.Sinks.Webhook.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("sinks.webhook.url is not an http(s) url: %q", raw))
		}
	}

	return errors.Join(errs...)
}
