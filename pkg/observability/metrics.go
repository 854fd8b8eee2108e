// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring appcommon services.
package observability

import "github.com/prometheus/client_golang/prometheus"

// TokenEndpointBuckets covers token endpoint round trips from 10ms to 10s.
var TokenEndpointBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appcommon_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appcommon_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthenticationTotal counts authentication decisions per mechanism.
	// decision is one of "identity", "none", "failure" or "unavailable".
	AuthenticationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appcommon_authentication_total",
			Help: "Authentication decisions",
		},
		[]string{"mechanism", "decision"},
	)

	// TokenEndpointRequestsTotal counts OIDC token endpoint calls by grant
	// type and outcome.
	TokenEndpointRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appcommon_token_endpoint_requests_total",
			Help: "Token endpoint requests",
		},
		[]string{"grant", "status"},
	)

	// TokenEndpointLatency records token endpoint round trips in seconds.
	TokenEndpointLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appcommon_token_endpoint_latency_seconds",
			Help:    "Token endpoint latency",
			Buckets: TokenEndpointBuckets,
		},
		[]string{"grant"},
	)

	// TokenEndpointSessionsOpen tracks token endpoint sessions not yet closed.
	TokenEndpointSessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "appcommon_token_endpoint_sessions_open",
			Help: "Open token endpoint sessions",
		},
	)

	// AuditEventsTotal counts emitted audit records.
	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appcommon_audit_events_total",
			Help: "Audit events",
		},
		[]string{"action", "outcome"},
	)

	// DynamicConfigLookupsTotal counts dynamic config lookups by result:
	// hit, miss, unregistered, no_storage or error.
	DynamicConfigLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appcommon_dynamic_config_lookups_total",
			Help: "Dynamic config lookups",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthenticationTotal,
		TokenEndpointRequestsTotal,
		TokenEndpointLatency,
		TokenEndpointSessionsOpen,
		AuditEventsTotal,
		DynamicConfigLookupsTotal,
	)
}
