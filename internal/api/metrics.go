package api

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/depgraph-io/depgraph/internal/api/middleware"
	"github.com/depgraph-io/depgraph/internal/conflicts"
	"github.com/depgraph-io/depgraph/internal/depgraph"
)

// Query operations, used as the "operation" metric label.
const (
	opBuildDependencies = "build_dependencies"
	opDependencySet     = "dependency_set"
	opMisconflict       = "misconflict"
	opConflictFilter    = "conflict_filter"
)

// Metrics holds the Prometheus metrics of the API server.
type Metrics struct {
	HTTP *middleware.HTTPMetrics

	Queries          *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	ResultSize       *prometheus.HistogramVec
	ResolutionRounds prometheus.Histogram
	ExcusedPairs     prometheus.Counter
}

// NewMetrics creates the server metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTP: middleware.NewHTTPMetrics(reg, namespace),

		Queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of dependency and conflict queries by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of dependency and conflict queries in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ResultSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_result_size",
				Help:      "Number of entries returned by successful queries",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"operation"},
		),
		ResolutionRounds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_rounds",
				Help:      "Expansion rounds run per build dependency resolution",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		ExcusedPairs: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "excused_conflict_pairs_total",
				Help:      "File conflict pairs excused by Conflicts or Obsoletes declarations",
			},
		),
	}
}

// observe records one query. size is ignored for failed queries.
func (m *Metrics) observe(operation string, start time.Time, size int, err error) {
	if m == nil {
		return
	}

	m.Queries.WithLabelValues(operation, outcome(err)).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err == nil {
		m.ResultSize.WithLabelValues(operation).Observe(float64(size))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errInvalidParam),
		errors.Is(err, depgraph.ErrValidation), errors.Is(err, conflicts.ErrValidation):
		return "invalid"
	case errors.Is(err, depgraph.ErrNotFound), errors.Is(err, conflicts.ErrNotFound):
		return "not_found"
	case errors.Is(err, depgraph.ErrDataFetch), errors.Is(err, conflicts.ErrDataFetch):
		return "data_fetch_error"
	default:
		return "error"
	}
}
