// Package metrics exposes Prometheus collectors for the HTTP surface and the
// materialization job.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dgc"

type Metrics struct {
	Registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	seatConflicts prometheus.Counter

	instances       *prometheus.CounterVec
	materializeRuns *prometheus.CounterVec
	materializeTime prometheus.Histogram
	expiredBookings prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New(service string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &Metrics{
		Registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.", ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help: "HTTP request latency.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_requests_in_flight",
			Help: "Requests currently being served.", ConstLabels: labels,
		}),
		seatConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "seat_conflicts_total",
			Help: "Reservations or confirmations rejected because a seat was taken.", ConstLabels: labels,
		}),
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trip_instances_total",
			Help: "Trip instances handled by materialization, by outcome.", ConstLabels: labels,
		}, []string{"outcome"}),
		materializeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "materialize_runs_total",
			Help: "Materialization runs by result.", ConstLabels: labels,
		}, []string{"result"}),
		materializeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "materialize_duration_seconds",
			Help: "Wall time of a materialization run.", ConstLabels: labels,
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		expiredBookings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "expired_bookings_total",
			Help: "Unpaid bookings cancelled after their hold lapsed.", ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpInFlight, m.seatConflicts,
		m.instances, m.materializeRuns, m.materializeTime, m.expiredBookings,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func skipPath(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health")
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) SeatConflict() {
	if m == nil {
		return
	}
	m.seatConflicts.Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredBookings.Add(float64(n))
}

// ObserveMaterialization records one run of the materialization job.
func (m *Metrics) ObserveMaterialization(created, existing, failed int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.instances.WithLabelValues("created").Add(float64(created))
	m.instances.WithLabelValues("existing").Add(float64(existing))
	m.instances.WithLabelValues("failed").Add(float64(failed))
	m.materializeTime.Observe(elapsed.Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.materializeRuns.WithLabelValues(result).Inc()
}
