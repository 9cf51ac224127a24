// Package metrics exposes Prometheus collectors for the ranker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for search requests and keyword walks.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	CacheHitsTotal  prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	WalkDuration    prometheus.Histogram
	ActiveWalks     prometheus.Gauge
	AbandonedTotal  prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranker_search_requests_total",
			Help: "Total search API requests by result.",
		},
		[]string{"result"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranker_search_request_duration_seconds",
			Help:    "Search API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranker_page_cache_hits_total",
			Help: "Search pages served from the page cache.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranker_search_retries_total",
			Help: "Total number of search retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranker_search_errors_total",
			Help: "Search errors by kind.",
		},
		[]string{"error_type"},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranker_keyword_outcomes_total",
			Help: "Keyword outcomes by status.",
		},
		[]string{"status"},
	)
	walkDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ranker_keyword_walk_duration_seconds",
			Help:    "Wall time spent walking one keyword.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ranker_active_walks",
			Help: "Keyword walks currently holding an admission slot.",
		},
	)
	abandoned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ranker_keywords_abandoned_total",
			Help: "Keywords never started because the run deadline passed.",
		},
	)

	registry.MustRegister(requests, requestDuration, cacheHits, retries, errorsTotal, outcomes, walkDuration, active, abandoned)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		CacheHitsTotal:  cacheHits,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		OutcomesTotal:   outcomes,
		WalkDuration:    walkDuration,
		ActiveWalks:     active,
		AbandonedTotal:  abandoned,
	}
}

// IncRequest increments the requests counter for a result label.
func (m *Metrics) IncRequest(result string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(result).Inc()
}

// ObserveDuration records a search request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncCacheHit increments the page cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveOutcome records a finished keyword walk.
func (m *Metrics) ObserveOutcome(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(status).Inc()
	m.WalkDuration.Observe(elapsed.Seconds())
}

// WalkStarted marks an admission slot as taken.
func (m *Metrics) WalkStarted() {
	if m == nil {
		return
	}
	m.ActiveWalks.Inc()
}

// WalkDone releases an admission slot.
func (m *Metrics) WalkDone() {
	if m == nil {
		return
	}
	m.ActiveWalks.Dec()
}

// IncAbandoned counts a keyword skipped by the deadline.
func (m *Metrics) IncAbandoned() {
	if m == nil {
		return
	}
	m.AbandonedTotal.Inc()
}
