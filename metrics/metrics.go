// Package metrics exposes Prometheus collectors for catalog builds, snapshot
// fetches and the HTTP API.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/docutag/animescraper/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "animescraper"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	buildsTotal    *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	pagesTotal     *prometheus.CounterVec
	catalogRecords *prometheus.GaugeVec
	fetchTotal     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	dbConnections  *prometheus.GaugeVec
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegisterer(reg, reg)
}

// NewWithRegisterer creates the collectors on reg and serves them from gatherer
func NewWithRegisterer(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		registry: gatherer,
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_builds_total",
			Help:      "Catalog builds by result.",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_build_duration_seconds",
			Help:      "Time to load pages and assemble a catalog.",
			Buckets:   prometheus.DefBuckets,
		}),
		pagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Snapshot pages seen by the assembler by kind and outcome.",
		}, []string{"kind", "outcome"}),
		catalogRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_records",
			Help:      "Records in the live catalog by type.",
		}, []string{"type"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Page fetches by source and result.",
		}, []string{"source", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dbConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Snapshot database connections by state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.buildsTotal,
		m.buildDuration,
		m.pagesTotal,
		m.catalogRecords,
		m.fetchTotal,
		m.httpRequests,
		m.httpDuration,
		m.dbConnections,
	)
	return m
}

// ObserveBuild records one catalog build
func (m *Metrics) ObserveBuild(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.buildsTotal.WithLabelValues(result).Inc()
	m.buildDuration.Observe(d.Seconds())
}

// ObservePages adds n pages of kind with the given outcome (applied, skipped, ignored)
func (m *Metrics) ObservePages(kind, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pagesTotal.WithLabelValues(kind, outcome).Add(float64(n))
}

// SetCatalogCounts publishes the size of the live catalog
func (m *Metrics) SetCatalogCounts(c models.Counts) {
	if m == nil {
		return
	}
	m.catalogRecords.WithLabelValues("anime").Set(float64(c.Anime))
	m.catalogRecords.WithLabelValues("episodes").Set(float64(c.Episodes))
	m.catalogRecords.WithLabelValues("genres").Set(float64(c.Genres))
	m.catalogRecords.WithLabelValues("schedule").Set(float64(c.Schedule))
	m.catalogRecords.WithLabelValues("featured").Set(float64(c.Featured))
}

// ObserveFetch records a page fetch from source (local or live)
func (m *Metrics) ObserveFetch(source string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.fetchTotal.WithLabelValues(source, result).Inc()
}

// UpdateDBStats publishes connection pool statistics
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.dbConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// Handler serves the registered metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
