// Package metrics provides Prometheus metrics for the request gate.
//
// Exposed at /metrics on the admin server:
//
// Resolution:
//   - tenantgate_resolutions_total: resolutions by method and outcome
//   - tenantgate_resolution_duration_seconds: resolution latency
//
// Validation:
//   - tenantgate_validations_total: verdicts by outcome
//
// Rate limiting / security:
//   - tenantgate_ratelimit_requests_total: evaluated requests by result
//   - tenantgate_violations_total: recorded violations by kind and severity
//
// HTTP:
//   - tenantgate_http_requests_total / tenantgate_http_request_duration_seconds
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts tenant resolutions by method and outcome.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_resolutions_total",
			Help: "Total tenant resolutions by method and outcome",
		},
		[]string{"method", "outcome", "cache"},
	)

	// ResolutionDuration tracks resolution latency in seconds.
	ResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tenantgate_resolution_duration_seconds",
			Help:    "Tenant resolution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ResolutionCacheEntries tracks the live resolution-cache size.
	ResolutionCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantgate_resolution_cache_entries",
			Help: "Current number of resolution cache entries",
		},
	)

	// ValidationsTotal counts validation verdicts.
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_validations_total",
			Help: "Total tenant validations by outcome",
		},
		[]string{"outcome", "cache"},
	)

	// RateLimitRequestsTotal counts rate-limit evaluations.
	RateLimitRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_ratelimit_requests_total",
			Help: "Total requests evaluated by the rate limiter",
		},
		[]string{"allowed"},
	)

	// ViolationsTotal counts recorded violations.
	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_violations_total",
			Help: "Total recorded violations by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	// HTTPRequestsTotal counts HTTP requests by server, method, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantgate_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"server", "method", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server", "method"},
	)
)

// RecordResolution records one resolution with its latency.
func RecordResolution(method string, found, cacheHit bool, d time.Duration) {
	outcome := "miss"
	if found {
		outcome = "found"
	}
	ResolutionsTotal.WithLabelValues(method, outcome, strconv.FormatBool(cacheHit)).Inc()
	ResolutionDuration.Observe(d.Seconds())
}

// RecordValidation records one validation verdict.
func RecordValidation(valid, cacheHit bool) {
	outcome := "denied"
	if valid {
		outcome = "allowed"
	}
	ValidationsTotal.WithLabelValues(outcome, strconv.FormatBool(cacheHit)).Inc()
}

// RecordRateLimit records one rate-limit evaluation.
func RecordRateLimit(allowed bool) {
	RateLimitRequestsTotal.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// RecordViolation records one violation by kind and severity.
func RecordViolation(kind, severity string) {
	ViolationsTotal.WithLabelValues(kind, severity).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(server, method string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(server, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(server, method).Observe(d.Seconds())
}
