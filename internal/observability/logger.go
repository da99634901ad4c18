package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger writes human-oriented lines for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger is the relay's logger, configured by InitServerLogger.
	ServerLogger *logging.Logger
)

// Logging profiles accepted by InitServerLogger.
const (
	ProfileSimple     = "SIMPLE"
	ProfileStructured = "STRUCTURED"
)

var severities = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// Severity normalizes a configured level name. Unknown names become INFO.
func Severity(level string) string {
	if s, ok := severities[strings.ToLower(strings.TrimSpace(level))]; ok {
		return s
	}
	return "INFO"
}

// InitCLILogger sets CLILogger. verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal("initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger sets ServerLogger. namespace, when given, is attached to
// every entry so logs line up with the metrics namespace.
func InitServerLogger(serviceName, logLevel, profile string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}
	logger, err := logging.New(ServerLoggerConfig(serviceName, logLevel, profile, ns))
	if err != nil {
		fatal("initialize server logger", err)
	}
	ServerLogger = logger
}

// ServerLoggerConfig builds the relay logger configuration. STRUCTURED (the
// default) emits JSON with correlation IDs; SIMPLE emits console lines.
func ServerLoggerConfig(serviceName, logLevel, profile, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace != "" {
		static["namespace"] = namespace
	}

	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: Severity(logLevel),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{{
			Type:    "console",
			Format:  "json",
			Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
		}},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	if strings.EqualFold(strings.TrimSpace(profile), ProfileSimple) {
		cfg.Profile = logging.ProfileSimple
		cfg.Middleware = nil
		cfg.Sinks[0].Format = "console"
		cfg.EnableStacktrace = false
	}
	return cfg
}

// SyncLoggers flushes both loggers and returns the first error. Sync fails
// harmlessly on a closed stderr, so callers only log it.
func SyncLoggers() error {
	var first error
	for _, l := range []*logging.Logger{ServerLogger, CLILogger} {
		if l == nil {
			continue
		}
		if err := l.Sync(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// fatal runs before any logger exists, so it reports on stderr directly.
func fatal(what string, err error) {
	code := foundry.ExitConfigInvalid
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", what, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
