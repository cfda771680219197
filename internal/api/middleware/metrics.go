package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unmatchedRoute = "unmatched"

// HTTPMetrics holds the Prometheus request metrics of the API.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewHTTPMetrics creates the request metrics and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer, namespace string) *HTTPMetrics {
	factory := promauto.With(reg)

	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"route", "method"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
	}
}

type routeKey struct{}

// Instrument is the metrics middleware. Requests are labelled with the matched ServeMux
// pattern reported by CaptureRoute, so path values do not inflate label cardinality.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapResponseWriter(w)
		route := new(string)

		m.InFlight.Inc()
		defer m.InFlight.Dec()

		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), routeKey{}, route)))

		label := *route
		if label == "" {
			label = unmatchedRoute
		}

		m.RequestsTotal.WithLabelValues(label, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(label, r.Method).Observe(time.Since(start).Seconds())
	})
}

// CaptureRoute wraps the mux and hands the pattern it matched back to Instrument.
func CaptureRoute(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)

		if route, ok := r.Context().Value(routeKey{}).(*string); ok {
			*route = r.Pattern
		}
	})
}
