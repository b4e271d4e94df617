package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "fuel_registry_"

	resultSuccess  = "success"
	resultError    = "error"
	resultNotFound = "not_found"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	stationOpsTotal   *prometheus.CounterVec
	stationOpsLatency *prometheus.HistogramVec

	referencesCreated *prometheus.CounterVec
	unknownReferences *prometheus.CounterVec

	routingCache           *prometheus.CounterVec
	routingUpstreamTotal   *prometheus.CounterVec
	routingUpstreamLatency *prometheus.HistogramVec
	routingElements        *prometheus.CounterVec

	quotaUsed  *prometheus.GaugeVec
	quotaLimit *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers metrics and, when db is set, store-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		stationOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "station_ops_total",
				Help: "Total station aggregate operations by op and result",
			},
			[]string{"op", "result"},
		)
		stationOpsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "station_ops_latency_seconds",
				Help:    "Station aggregate operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)

		referencesCreated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "references_created_total",
				Help: "Reference entities staged for creation by kind",
			},
			[]string{"kind"},
		)
		unknownReferences = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "unknown_references_total",
				Help: "References rendered as Unknown by collection",
			},
			[]string{"collection"},
		)

		routingCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "routing_cache_total",
				Help: "Route distance cache lookups by result",
			},
			[]string{"result"},
		)
		routingUpstreamTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "routing_upstream_total",
				Help: "Upstream routing requests by provider and result",
			},
			[]string{"provider", "result"},
		)
		routingUpstreamLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "routing_upstream_latency_seconds",
				Help:    "Upstream routing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "result"},
		)
		routingElements = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "routing_elements_total",
				Help: "Per-destination routing results by status",
			},
			[]string{"status"},
		)

		quotaUsed = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "quota_used",
				Help: "Daily external API usage by surface",
			},
			[]string{"surface"},
		)
		quotaLimit = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "quota_limit",
				Help: "Daily external API limit by surface",
			},
			[]string{"surface"},
		)

		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)

		prometheus.MustRegister(
			stationOpsTotal,
			stationOpsLatency,
			referencesCreated,
			unknownReferences,
			routingCache,
			routingUpstreamTotal,
			routingUpstreamLatency,
			routingElements,
			quotaUsed,
			quotaLimit,
			httpRequests,
			httpLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ResultOf maps an operation error to a result label.
func ResultOf(err error) string {
	if err == nil {
		return resultSuccess
	}
	return resultError
}

// ObserveStationOp records a station aggregate operation.
func ObserveStationOp(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if stationOpsTotal != nil {
		stationOpsTotal.WithLabelValues(op, result).Inc()
	}
	if stationOpsLatency != nil {
		stationOpsLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// IncReferenceCreated counts a newly staged reference entity.
func IncReferenceCreated(kind string) {
	if referencesCreated != nil {
		referencesCreated.WithLabelValues(kind).Inc()
	}
}

// IncUnknownReference counts a reference degraded to Unknown.
func IncUnknownReference(collection string) {
	if unknownReferences != nil {
		unknownReferences.WithLabelValues(collection).Inc()
	}
}

// IncRoutingCache records a cache lookup.
func IncRoutingCache(hit bool) {
	if routingCache == nil {
		return
	}
	if hit {
		routingCache.WithLabelValues(cacheHit).Inc()
		return
	}
	routingCache.WithLabelValues(cacheMiss).Inc()
}

// ObserveRoutingUpstream records an upstream routing request.
func ObserveRoutingUpstream(provider, result string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if routingUpstreamTotal != nil {
		routingUpstreamTotal.WithLabelValues(provider, result).Inc()
	}
	if routingUpstreamLatency != nil {
		routingUpstreamLatency.WithLabelValues(provider, result).Observe(duration.Seconds())
	}
}

// IncRoutingElement counts one per-destination status.
func IncRoutingElement(status string) {
	if routingElements != nil {
		routingElements.WithLabelValues(status).Inc()
	}
}

// SetQuota publishes the usage of a quota surface.
func SetQuota(surface string, used, limit int64) {
	if quotaUsed != nil {
		quotaUsed.WithLabelValues(surface).Set(float64(used))
	}
	if quotaLimit != nil {
		quotaLimit.WithLabelValues(surface).Set(float64(limit))
	}
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, status string, duration time.Duration) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, status).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method).Observe(duration.Seconds())
	}
}

const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultNotFound = resultNotFound
)
