package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency, labeled by method,
// route pattern, and status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "webvh",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// DIDsCreatedTotal is the counter for DID slot reservations, labeled by
// whether the mnemonic was random or a caller-supplied custom path.
// Nothing increments it (see All).
var DIDsCreatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "webvh",
		Subsystem: "dids",
		Name:      "created_total",
		Help:      "Total number of DID slots created.",
	},
	[]string{"kind"},
)

// DIDsPublishedTotal is the counter for accepted log publications.
// Nothing increments it (see All).
var DIDsPublishedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "webvh",
		Subsystem: "dids",
		Name:      "published_total",
		Help:      "Total number of DID log publications accepted.",
	},
)

// DIDsDeletedTotal is the counter for DID deletions, labeled by reason
// (caller-initiated delete or janitor cleanup of stale unpublished
// slots). Nothing increments it (see All).
var DIDsDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "webvh",
		Subsystem: "dids",
		Name:      "deleted_total",
		Help:      "Total number of DIDs deleted.",
	},
	[]string{"reason"},
)

// DIDResolutionsTotal is the counter for public resolutions of a DID
// log or witness file, labeled by kind and by hit or miss. Nothing
// increments it (see All).
var DIDResolutionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "webvh",
		Subsystem: "dids",
		Name:      "resolutions_total",
		Help:      "Total number of public DID resolutions.",
	},
	[]string{"kind", "result"},
)

// QuotaRejectionsTotal is the counter for requests rejected by the ACL
// count or size quota checks. Nothing increments it (see All).
var QuotaRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "webvh",
		Subsystem: "acl",
		Name:      "quota_rejections_total",
		Help:      "Total number of requests rejected for exceeding a quota.",
	},
	[]string{"kind"},
)

// StoreOpDuration is the histogram for backend store operation latency,
// labeled by backend (bbolt, redis, postgres, dynamodb) and operation.
// No store backend observes it (see All).
var StoreOpDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "webvh",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Backend store operation duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"backend", "op"},
)

// All returns every webvh-specific metric collector for registration.
// No code path updates any of them, so /metrics exports each at zero;
// HTTPRequestDuration, observed by the httpserver metrics middleware,
// is the only metric of this package that records anything.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		DIDsCreatedTotal,
		DIDsPublishedTotal,
		DIDsDeletedTotal,
		DIDResolutionsTotal,
		QuotaRejectionsTotal,
		StoreOpDuration,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTPRequestDuration metric, and every
// webvh-specific collector.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
