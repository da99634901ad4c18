package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeverity(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		" Debug ": "DEBUG",
		"info":    "INFO",
		"warning": "WARN",
		"WARN":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, Severity(in), "level %q", in)
	}
}

func TestServerLoggerConfigStructured(t *testing.T) {
	cfg := ServerLoggerConfig("pacer", "debug", "structured", "pacer_relay")

	assert.Equal(t, logging.ProfileStructured, cfg.Profile)
	assert.Equal(t, "DEBUG", cfg.DefaultLevel)
	assert.Equal(t, "pacer_relay", cfg.StaticFields["namespace"])
	require.Len(t, cfg.Middleware, 1)
	assert.Equal(t, "correlation", cfg.Middleware[0].Name)
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "json", cfg.Sinks[0].Format)
	assert.True(t, cfg.EnableStacktrace)

	logger, err := logging.New(cfg)
	require.NoError(t, err)
	logger.Info("structured logger ready", zap.String("gate", "search"))
}

func TestServerLoggerConfigSimple(t *testing.T) {
	cfg := ServerLoggerConfig("pacer", "", "Simple", "")

	assert.Equal(t, logging.ProfileSimple, cfg.Profile)
	assert.Equal(t, "INFO", cfg.DefaultLevel)
	assert.Empty(t, cfg.Middleware)
	assert.Equal(t, "console", cfg.Sinks[0].Format)
	assert.False(t, cfg.EnableStacktrace)
	assert.NotContains(t, cfg.StaticFields, "namespace")

	logger, err := logging.New(cfg)
	require.NoError(t, err)
	logger.Debug("filtered at INFO")
}

func TestInitLoggers(t *testing.T) {
	InitCLILogger("pacer-test", true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("cli logger ready")

	InitServerLogger("pacer-test", "info", ProfileStructured)
	require.NotNil(t, ServerLogger)
	ServerLogger.Info("server logger ready", zap.Int("gates", 2))

	// Sync on a test's stderr may fail; it must not panic.
	_ = SyncLoggers()
}

func TestCrucibleEmbedded(t *testing.T) {
	v := crucible.GetVersion()
	assert.NotEmpty(t, v.Gofulmen)
	assert.NotEmpty(t, v.Crucible)
	assert.NotNil(t, crucible.SchemaRegistry.Observability())
}
