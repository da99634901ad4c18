package server

import (
	"context"
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/appid"
	"github.com/pacerhq/pacer/internal/observability"
	"github.com/pacerhq/pacer/internal/server/handlers"
)

// Admin signal endpoint limits: requests per minute and burst.
const (
	adminRateLimit = 10
	adminRateBurst = 5
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)
	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	// Only event ingress is rate limited; probes and scrapes never are.
	s.router.Route("/v1/gates", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Get("/", s.gates.List)
		r.Post("/{gate}/events", s.gates.Submit)
		r.Post("/{gate}/keys/{key}/flush", s.gates.Flush)
		r.Delete("/{gate}/keys/{key}", s.gates.Cancel)
	})

	s.registerAdminEndpoint()
}

// adminTokenVar names the environment variable holding the admin bearer
// token.
func adminTokenVar() string {
	return appid.EnvVar(context.Background(), "ADMIN_TOKEN")
}

// registerAdminEndpoint mounts POST /admin/signal when an admin token is set.
// It lets operators trigger shutdown or config reload over HTTP.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	tokenVar := adminTokenVar()
	token := os.Getenv(tokenVar)
	if token == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled", zap.String("env", tokenVar))
		}
		return
	}

	s.router.Post("/admin/signal", signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: adminRateLimit,
		RateBurst: adminRateBurst,
	}).ServeHTTP)

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep it off public networks",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_limit_per_min", adminRateLimit),
			zap.Int("burst", adminRateBurst))
	}
}
