package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/core/pace"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("PACER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(yaml)))
	}
	return v
}

func TestLoadFrom(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := LoadFrom(newViper(t, ""))
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.True(t, cfg.Server.FlushOnShutdown)
		assert.True(t, cfg.Server.RateLimit.Enabled)
		assert.Equal(t, 50.0, cfg.Server.RateLimit.RPS)
		assert.Equal(t, 100, cfg.Server.RateLimit.Burst)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.Equal(t, filepath.Join(gfconfig.GetAppDataDir("pacer"), "pacer.db"), cfg.Store.Path)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Sinks.Log)
		assert.True(t, cfg.Sinks.Journal)
		assert.Equal(t, 3, cfg.Sinks.Webhook.MaxRetries)
		assert.Equal(t, 200*time.Millisecond, cfg.Sinks.Webhook.RetryWaitMin)
		assert.Empty(t, cfg.Gates)
	})

	t.Run("GatesFromFile", func(t *testing.T) {
		cfg, err := LoadFrom(newViper(t, `
store:
  path: ":memory:"
gates:
  - name: search
    kind: debounce
    window: 300ms
  - name: clicks
    kind: throttle
    window: 1s
    max_keys: 500
    shared: true
coordination:
  redis:
    addr: localhost:6379
sinks:
  webhook:
    url: https://hooks.example.com/pacer
    headers:
      authorization: Bearer abc
`))
		require.NoError(t, err)

		specs, err := cfg.GateSpecs()
		require.NoError(t, err)
		require.Len(t, specs, 2)
		assert.Equal(t, "search", specs[0].Name)
		assert.Equal(t, pace.KindDebounce, specs[0].Kind)
		assert.Equal(t, 300*time.Millisecond, specs[0].Window)
		assert.Equal(t, pace.KindThrottle, specs[1].Kind)
		assert.Equal(t, 500, specs[1].MaxKeys)
		assert.True(t, specs[1].Shared)
		assert.Equal(t, "https://hooks.example.com/pacer", cfg.Sinks.Webhook.URL)
		assert.Equal(t, "Bearer abc", cfg.Sinks.Webhook.Headers["authorization"])
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("PACER_SERVER_PORT", "9999")
		t.Setenv("PACER_LOGGING_LEVEL", "debug")
		t.Setenv("PACER_SERVER_RATE_LIMIT_RPS", "2.5")

		cfg, err := LoadFrom(newViper(t, "store:\n  path: \":memory:\"\n"))
		require.NoError(t, err)
		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 2.5, cfg.Server.RateLimit.RPS)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown kind",
			yaml: "gates:\n  - name: a\n    kind: leading\n    window: 1s\n",
			want: "unsupported kind",
		},
		{
			name: "missing window",
			yaml: "gates:\n  - name: a\n    kind: throttle\n",
			want: "window must be positive",
		},
		{
			name: "duplicate gate",
			yaml: "gates:\n  - name: a\n    kind: throttle\n    window: 1s\n  - name: a\n    kind: debounce\n    window: 1s\n",
			want: "configured twice",
		},
		{
			name: "shared without redis",
			yaml: "gates:\n  - name: a\n    kind: throttle\n    window: 1s\n    shared: true\n",
			want: "coordination.redis.addr",
		},
		{
			name: "bad webhook url",
			yaml: "sinks:\n  webhook:\n    url: ftp://example.com\n",
			want: "sinks.webhook.url",
		},
		{
			name: "bad rate limit",
			yaml: "server:\n  rate_limit:\n    rps: 0\n",
			want: "rps must be positive",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(newViper(t, "store:\n  path: \":memory:\"\n"+tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.Equal(t, filepath.Join(gfconfig.GetAppConfigDir("pacer"), "config.yaml"), DefaultConfigPath())
	assert.Equal(t, gfconfig.GetAppDataDir("pacer"), DefaultDataDir())
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", ServerConfig{Host: "127.0.0.1", Port: 8080}.Addr())
	assert.Equal(t, "[::1]:9000", ServerConfig{Host: "::1", Port: 9000}.Addr())
	assert.Equal(t, ":0", ServerConfig{}.Addr())
}
