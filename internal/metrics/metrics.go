// Package metrics emits relay metrics through the gofulmen telemetry system.
// Every recorder is a no-op until observability.InitMetrics has run.
package metrics

import (
	"strconv"
	"time"

	"github.com/pacerhq/pacer/internal/observability"
)

// Metric names, prefixed with the telemetry namespace on export.
const (
	GateOutcomesTotal     = "gate_outcomes_total"
	SinkDeliveriesTotal   = "sink_deliveries_total"
	SinkDeliveryDuration  = "sink_delivery_duration_ms"
	IngressRejectedTotal  = "ingress_rejected_total"
	OperationsTotal       = "app_operations_total"
	OperationsErrorsTotal = "app_operations_errors_total"
	ActiveConnections     = "app_active_connections"
	HealthCheckTotal      = "app_health_check_total"
	HealthCheckDuration   = "app_health_check_duration_ms"
	ServerStartTime       = "app_server_start_time_seconds"
	ServerUptime          = "app_server_uptime_seconds"
	ErrorsTotal           = "errors_total"
	PanicsTotal           = "panics_total"
	ErrorsByEndpoint      = "errors_by_endpoint"
)

type labels = map[string]string

func count(name string, l labels) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, l)
	}
}

func observe(name string, d time.Duration, l labels) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, l)
	}
}

func set(name string, value float64, l labels) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, l)
	}
}

func status(ok bool, good, bad string) string {
	if ok {
		return good
	}
	return bad
}

// RecordError counts an error envelope returned to a client.
func RecordError(errorCode string, httpStatus int) {
	count(ErrorsTotal, labels{"error_code": errorCode, "http_status": strconv.Itoa(httpStatus)})
}

// RecordErrorByEndpoint counts an error against a route pattern.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	count(ErrorsByEndpoint, labels{"endpoint": endpoint, "error_code": errorCode})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotal, nil)
}

func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	count(HealthCheckTotal, labels{"check": checkName, "status": status(healthy, "healthy", "unhealthy")})
	observe(HealthCheckDuration, duration, labels{"check": checkName})
}

func SetActiveConnections(n int64) {
	set(ActiveConnections, float64(n), nil)
}

func SetServerStartTime(unix int64) {
	set(ServerStartTime, float64(unix), nil)
}

func SetServerUptime(seconds int64) {
	set(ServerUptime, float64(seconds), nil)
}

// HTTP request metrics
const (
	HTTPRequestsTotal     = "http_requests_total"
	HTTPRequestDuration   = "http_request_duration_ms"
	HTTPRequestSizeBytes  = "http_request_size_bytes"
	HTTPResponseSizeBytes = "http_response_size_bytes"
	HTTPErrorsTotal       = "http_errors_total"
)

// HTTPRequest describes one served request. Endpoint must be a route
// pattern, never a raw path.
type HTTPRequest struct {
	Method       string
	Endpoint     string
	Status       int
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
}

// RecordHTTPRequest emits the request counter, latency, sizes and, for 4xx
// and 5xx responses, the error counter.
func RecordHTTPRequest(req HTTPRequest) {
	code := strconv.Itoa(req.Status)
	common := labels{"method": req.Method, "endpoint": req.Endpoint, "status": code}
	route := labels{"method": req.Method, "endpoint": req.Endpoint}

	count(HTTPRequestsTotal, common)
	observe(HTTPRequestDuration, req.Duration, common)
	set(HTTPRequestSizeBytes, float64(req.RequestSize), route)
	set(HTTPResponseSizeBytes, float64(req.ResponseSize), route)

	if req.Status >= 400 {
		count(HTTPErrorsTotal, labels{
			"method":     req.Method,
			"endpoint":   req.Endpoint,
			"status":     code,
			"error_type": status(req.Status < 500, "client_error", "server_error"),
		})
	}
}
