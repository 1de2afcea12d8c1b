package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pool statistics service.
type Metrics struct {
	// Inbound metrics
	QueriesTotal *prometheus.CounterVec
	QueryLatency *prometheus.HistogramVec

	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Feed metrics
	FeedConnections prometheus.Gauge

	registry *prometheus.Registry
}

// New creates all collectors and registers them on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstats_queries_total",
				Help: "Total number of pool queries by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poolstats_query_latency_seconds",
				Help:    "Time to answer a pool query, cache hits included",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15), // 0.5ms to ~8s
			},
			[]string{"source"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstats_upstream_requests_total",
				Help: "Total number of subgraph requests by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poolstats_upstream_latency_seconds",
				Help:    "Subgraph request latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"source"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolstats_cache_lookups_total",
				Help: "Cache lookups by result (hit, miss, shared)",
			},
			[]string{"result"},
		),
		FeedConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolstats_feed_connections",
				Help: "Number of open websocket feed connections",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	// Register all metrics
	m.registry.MustRegister(
		m.QueriesTotal,
		m.QueryLatency,
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.CacheLookups,
		m.FeedConnections,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordQuery records one answered (or failed) inbound query.
func (m *Metrics) RecordQuery(source string, d time.Duration, err error) {
	m.QueriesTotal.WithLabelValues(source, outcome(err)).Inc()
	m.QueryLatency.WithLabelValues(source).Observe(d.Seconds())
}

// RecordUpstreamRequest records one subgraph call.
func (m *Metrics) RecordUpstreamRequest(source string, d time.Duration, err error) {
	m.UpstreamRequests.WithLabelValues(source, outcome(err)).Inc()
	m.UpstreamLatency.WithLabelValues(source).Observe(d.Seconds())
}

// RecordCacheLookup increments the lookup counter for result.
func (m *Metrics) RecordCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetFeedConnected adjusts the open feed gauge.
func (m *Metrics) SetFeedConnected(connected bool) {
	if connected {
		m.FeedConnections.Inc()
	} else {
		m.FeedConnections.Dec()
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
