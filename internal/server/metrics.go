package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/component-base/metrics/legacyregistry"
)

// httpMetrics are registered on a per-server registry so several servers can
// coexist in one process.
type httpMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func newHTTPMetrics() *httpMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &httpMetrics{
		registry: registry,
		// requestsTotal counts requests by route and response code
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "audit_dashboard",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "audit_dashboard",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Time spent serving HTTP requests",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "audit_dashboard",
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
	}
}

// instrument records metrics for requests served by next under route.
func (m *httpMetrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		rec := wrapResponseWriter(w)
		next.ServeHTTP(rec, r)

		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		m.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// handler serves the HTTP metrics together with the storage, filter and
// lifecycle metrics registered on the component-base legacy registry.
func (m *httpMetrics) handler() http.Handler {
	return promhttp.HandlerFor(
		prometheus.Gatherers{m.registry, legacyregistry.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
}
