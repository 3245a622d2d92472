package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/CiaoMoro1/gestionale-backend-sub000/internal/jobs"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pickRows        *prometheus.CounterVec
	pickFailures    *prometheus.CounterVec
	syncRows        *prometheus.CounterVec
	syncFailures    prometheus.Counter
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, reconciliation and job collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gestionale_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gestionale_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	pickRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gestionale_pick_rows_total",
		Help: "Pick rows written by operation.",
	}, []string{"op"})
	pickFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gestionale_pick_failures_total",
		Help: "Pick list operations that ended with failed batches.",
	}, []string{"op"})
	syncRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gestionale_production_sync_rows_total",
		Help: "Production rows changed by reconciliation, by action.",
	}, []string{"action"})
	syncFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gestionale_production_sync_batch_failures_total",
		Help: "Reconciliation batches that failed.",
	})
	registry.MustRegister(requests, duration, pickRows, pickFailures, syncRows, syncFailures)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		pickRows:        pickRows,
		pickFailures:    pickFailures,
		syncRows:        syncRows,
		syncFailures:    syncFailures,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObservePickRows counts rows written by a pick list operation.
func (m *Metrics) ObservePickRows(op string, rows int, failed bool) {
	if m == nil {
		return
	}
	if rows > 0 {
		m.pickRows.WithLabelValues(op).Add(float64(rows))
	}
	if failed {
		m.pickFailures.WithLabelValues(op).Inc()
	}
}

// ObserveSync counts the outcome of one reconciliation pass.
func (m *Metrics) ObserveSync(report shared.SyncReport) {
	if m == nil {
		return
	}
	m.syncRows.WithLabelValues("insert").Add(float64(report.Inserted))
	m.syncRows.WithLabelValues("update").Add(float64(report.Updated))
	m.syncRows.WithLabelValues("delete").Add(float64(report.Deleted))
	m.syncRows.WithLabelValues("log").Add(float64(report.Logged))
	m.syncFailures.Add(float64(len(report.Failures)))
}

// Jobs returns the background job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
