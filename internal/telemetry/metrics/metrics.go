package metrics

import (
	"strings"
	"unicode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks orchestrated calls by route and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeguard_requests_total",
			Help: "Total number of orchestrated API calls",
		},
		[]string{"method", "route", "outcome"},
	)

	// RequestLatency tracks executor round-trip latency
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeguard_request_latency_seconds",
			Help:    "API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RateLimitHits tracks limiter denials per route
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeguard_rate_limit_hits_total",
			Help: "Total number of calls denied by the rate limiter",
		},
		[]string{"method", "route"},
	)

	// CacheEvents tracks cache hits, misses and evictions
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeguard_cache_events_total",
			Help: "Total number of cache events",
		},
		[]string{"event"},
	)

	// RetryQueueLength tracks operations waiting for another attempt
	RetryQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storeguard_retry_queue_length",
			Help: "Number of operations in the retry queue",
		},
	)

	// NetworkQuality tracks the current quality rank (-1 offline, 0 unknown, 4 excellent)
	NetworkQuality = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storeguard_network_quality",
			Help: "Current network quality rank",
		},
	)
)

// Route turns an endpoint into a bounded label value: the query is dropped
// and every segment that looks like an identifier becomes ":id", so
// /stores/7/ratings?page=2 is /stores/:id/ratings.
func Route(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" {
		return "/"
	}
	segments := strings.Split(endpoint, "/")
	for i, seg := range segments {
		if isIdentifier(seg) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func isIdentifier(seg string) bool {
	if len(seg) > 24 {
		return true
	}
	return strings.IndexFunc(seg, unicode.IsDigit) >= 0
}
