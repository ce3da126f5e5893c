package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamgate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Access Metrics
	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_access_decisions_total",
			Help: "Total number of authorization decisions",
		},
		[]string{"allow", "reason"},
	)

	AuditEmitFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_audit_emit_failures_total",
			Help: "Total number of swallowed audit emission failures",
		},
	)

	// Session Metrics
	SessionsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_sessions_opened_total",
			Help: "Total number of streaming sessions opened",
		},
	)

	SessionsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_sessions_evicted_total",
			Help: "Total number of sessions evicted by the concurrency cap",
		},
	)

	SessionsRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_sessions_revoked_total",
			Help: "Total number of sessions explicitly revoked",
		},
	)

	SessionValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_session_validations_total",
			Help: "Total number of session validation calls",
		},
		[]string{"result"},
	)

	// Token Metrics
	TokensSignedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamgate_tokens_signed_total",
			Help: "Total number of stream URLs signed",
		},
	)

	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_token_verifications_total",
			Help: "Total number of stream token verifications",
		},
		[]string{"result"},
	)

	// Security Metrics
	SecurityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_security_events_total",
			Help: "Total number of security-relevant events",
		},
		[]string{"event"},
	)

	// Manifest Metrics
	ManifestsBuiltTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_manifests_built_total",
			Help: "Total number of playback manifests built",
		},
		[]string{"result"},
	)

	ManifestBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamgate_manifest_build_duration_seconds",
			Help:    "Manifest build latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamgate_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordAccessDecision records an authorization decision
func RecordAccessDecision(allow bool, reason string) {
	allowLabel := "deny"
	if allow {
		allowLabel = "allow"
	}
	AccessDecisionsTotal.WithLabelValues(allowLabel, reason).Inc()
}

// RecordSessionValidation records a session validation result
func RecordSessionValidation(result string) {
	SessionValidationsTotal.WithLabelValues(result).Inc()
}

// RecordTokenVerification records a token verification result
func RecordTokenVerification(result string) {
	TokenVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordSecurityEvent records a security-relevant event
func RecordSecurityEvent(event string) {
	SecurityEventsTotal.WithLabelValues(event).Inc()
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordDatabaseOperation records a database operation
func RecordDatabaseOperation(operation, status string) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
}
