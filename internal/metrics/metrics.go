// Package metrics exposes the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by the web layer and the API client
type Metrics struct {
	RequestDuration   *prometheus.HistogramVec
	DegradedResponses prometheus.Counter

	ClientCacheHits   prometheus.Counter
	ClientCacheMisses prometheus.Counter
	ClientFetches     prometheus.Counter
	ClientRetries     prometheus.Counter
}

// New creates and registers the collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shadesupport",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		DegradedResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadesupport",
			Name:      "degraded_responses_total",
			Help:      "Responses served from synthesized placeholders after a datastore failure.",
		}),
		ClientCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadesupport",
			Subsystem: "client",
			Name:      "cache_hits_total",
			Help:      "Read-path requests served from the fresh cache.",
		}),
		ClientCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadesupport",
			Subsystem: "client",
			Name:      "cache_misses_total",
			Help:      "Read-path requests that went to the network.",
		}),
		ClientFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadesupport",
			Subsystem: "client",
			Name:      "fetches_total",
			Help:      "Network calls issued by the fetch controller.",
		}),
		ClientRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shadesupport",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Fetch attempts retried after a transport or 5xx failure.",
		}),
	}

	reg.MustRegister(
		m.RequestDuration,
		m.DegradedResponses,
		m.ClientCacheHits,
		m.ClientCacheMisses,
		m.ClientFetches,
		m.ClientRetries,
	)

	return m
}

// NewUnregistered creates collectors without registering them, for tests
// and one-shot CLI callers that never expose a scrape endpoint
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
