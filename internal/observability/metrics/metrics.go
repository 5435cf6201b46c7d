package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantcore_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	repositoryOps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantcore_repository_operation_duration_seconds",
		Help:    "Duration of repository operations by table, operation and result",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"table", "op", "result"})

	bulkItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_bulk_items_total",
		Help: "Items submitted to bulk operations by table, operation and outcome",
	}, []string{"table", "op", "result"})

	bulkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tenantcore_bulk_operation_duration_seconds",
		Help:    "Duration of bulk operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"table", "op"})

	tenantValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_tenant_validations_total",
		Help: "Tenant validation outcomes and whether the cache answered",
	}, []string{"result", "source"})

	tenantTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_tenant_status_transitions_total",
		Help: "Tenant status changes by source and target status",
	}, []string{"from", "to", "result"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_events_published_total",
		Help: "Domain events handed to the broker",
	}, []string{"broker", "topic", "result"})

	cacheSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_cache_evictions_total",
		Help: "Expired entries evicted by the sweeper, per cache",
	}, []string{"cache"})

	cacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tenantcore_cache_entries",
		Help: "Entries currently held per in-process cache",
	}, []string{"cache"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tenantcore_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantcore_rate_limited_requests_total",
		Help: "Requests rejected by the per-tenant rate limiter",
	}, []string{"tenant"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveRepository records one repository call.
func ObserveRepository(table, op, result string, duration time.Duration) {
	repositoryOps.WithLabelValues(table, op, result).Observe(duration.Seconds())
}

// ObserveBulk records a bulk call over n items.
func ObserveBulk(table, op, result string, n int, duration time.Duration) {
	bulkItems.WithLabelValues(table, op, result).Add(float64(n))
	bulkDuration.WithLabelValues(table, op).Observe(duration.Seconds())
}

// ObserveTenantValidation counts a validation; source is "cache" or "lookup".
func ObserveTenantValidation(result, source string) {
	tenantValidations.WithLabelValues(result, source).Inc()
}

// ObserveTransition counts an attempted tenant status change.
func ObserveTransition(from, to, result string) {
	tenantTransitions.WithLabelValues(from, to, result).Inc()
}

// ObserveEvent counts a publish attempt.
func ObserveEvent(broker, topic, result string) {
	eventsPublished.WithLabelValues(broker, topic, result).Inc()
}

// ObserveSweep records evictions and the remaining size of a cache.
func ObserveSweep(cache string, evicted, remaining int) {
	cacheSweeps.WithLabelValues(cache).Add(float64(evicted))
	cacheSize.WithLabelValues(cache).Set(float64(remaining))
}

// SetBreakerState publishes the numeric state of a circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveRateLimited counts a throttled request.
func ObserveRateLimited(tenantID string) {
	rateLimited.WithLabelValues(tenantID).Inc()
}
