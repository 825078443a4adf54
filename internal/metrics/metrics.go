// Package metrics provides Prometheus instrumentation for the query,
// comparison and storage layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for insight pipeline observability.
// All engine hooks are nil-safe so library users who do not wire metrics
// pay nothing.
type Metrics struct {
	QueriesTotal       prometheus.Counter   // Total number of executed session queries
	QueryDuration      prometheus.Histogram // Query execution time in seconds
	SessionsMatched    prometheus.Histogram // Sessions matched per query
	ComparisonsTotal   prometheus.Counter   // Total number of executed comparisons
	ComparisonFailures prometheus.Counter   // Comparisons that failed validation or had no matching sessions
	CacheHits          prometheus.Counter   // Session cache hits
	CacheMisses        prometheus.Counter   // Session cache misses
}

// NewMetrics creates Prometheus metrics for an insight instance.
// The registerer parameter allows flexible registration (e.g., global
// registry, test registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	queriesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_queries_total",
		Help: "Total number of executed session queries",
	})

	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_query_duration_seconds",
		Help:    "Session query execution time in seconds",
		Buckets: prometheus.DefBuckets,
	})

	sessionsMatched := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "insight_query_sessions_matched",
		Help:    "Number of sessions matched per query",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
	})

	comparisonsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_comparisons_total",
		Help: "Total number of executed comparisons",
	})

	comparisonFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_comparison_failures_total",
		Help: "Comparisons that failed validation or found no matching sessions",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_session_cache_hits_total",
		Help: "Session cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insight_session_cache_misses_total",
		Help: "Session cache misses",
	})

	reg.MustRegister(queriesTotal, queryDuration, sessionsMatched,
		comparisonsTotal, comparisonFailures, cacheHits, cacheMisses)

	return &Metrics{
		QueriesTotal:       queriesTotal,
		QueryDuration:      queryDuration,
		SessionsMatched:    sessionsMatched,
		ComparisonsTotal:   comparisonsTotal,
		ComparisonFailures: comparisonFailures,
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
	}
}

// ObserveQuery records one query execution. Nil-safe.
func (m *Metrics) ObserveQuery(durationSeconds float64, matched int) {
	if m == nil {
		return
	}
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(durationSeconds)
	m.SessionsMatched.Observe(float64(matched))
}

// ObserveComparison records one comparison execution. Nil-safe.
func (m *Metrics) ObserveComparison(failed bool) {
	if m == nil {
		return
	}
	m.ComparisonsTotal.Inc()
	if failed {
		m.ComparisonFailures.Inc()
	}
}

// ObserveCache records a session cache lookup. Nil-safe.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}
