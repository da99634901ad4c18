package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/metrics"
	"github.com/pacerhq/pacer/internal/observability"
)

// responseWriter records the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// EndpointPattern names the route a request hit without gate names, keys or
// other unbounded path segments.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	if pattern, ok := gatePattern(path); ok {
		return pattern
	}
	switch path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version", "/metrics", "/":
		return path
	default:
		return "/unknown"
	}
}

// gatePattern folds gate API paths so gate names and keys stay out of labels.
func gatePattern(path string) (string, bool) {
	if path == "/v1/gates" {
		return path, true
	}
	rest, ok := strings.CutPrefix(path, "/v1/gates/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "events":
		return "/v1/gates/{gate}/events", true
	case len(parts) == 3 && parts[1] == "keys":
		return "/v1/gates/{gate}/keys/{key}", true
	case len(parts) == 4 && parts[1] == "keys" && parts[3] == "flush":
		return "/v1/gates/{gate}/keys/{key}/flush", true
	}
	return "/v1/gates/*", true
}

// RequestMetrics emits HTTP metrics and an access log line per request.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil && observability.ServerLogger == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		req := metrics.HTTPRequest{
			Method:       r.Method,
			Endpoint:     EndpointPattern(r),
			Status:       wrapped.statusCode,
			Duration:     time.Since(start),
			RequestSize:  max(r.ContentLength, 0),
			ResponseSize: wrapped.bytesWritten,
		}
		metrics.RecordHTTPRequest(req)

		if observability.ServerLogger != nil {
			observability.ServerLogger.Info("HTTP request completed",
				zap.String("method", req.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", req.Endpoint),
				zap.Int("status", req.Status),
				zap.Duration("duration", req.Duration),
				zap.Int64("request_size", req.RequestSize),
				zap.Int64("response_size", req.ResponseSize),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		}
	})
}
