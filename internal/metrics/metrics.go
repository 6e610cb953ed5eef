// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics provides Prometheus collectors for registry traffic and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry client collectors. Each instance owns its own
// registry so that tests and multiple clients never collide.
type Metrics struct {
	registry *prometheus.Registry

	// Requests counts registry HTTP calls by endpoint ("search", "record")
	// and outcome ("ok", "error").
	Requests *prometheus.CounterVec

	// RequestLatency observes registry HTTP call durations by endpoint.
	RequestLatency *prometheus.HistogramVec

	// RecordErrors counts per-identifier failures by stage.
	RecordErrors *prometheus.CounterVec

	// RowsParsed counts affiliation rows produced by the parser.
	RowsParsed prometheus.Counter

	// Searches counts completed search calls by outcome
	// ("completed", "aborted").
	Searches *prometheus.CounterVec

	// HTTPRequests counts API requests by route pattern and status code.
	HTTPRequests *prometheus.CounterVec

	// HTTPLatency observes API request durations by route pattern.
	HTTPLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all collectors registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliation_registry_requests_total",
			Help: "Registry HTTP requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		RequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "affiliation_registry_request_duration_seconds",
			Help:    "Duration of registry HTTP requests by endpoint",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),

		RecordErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliation_record_errors_total",
			Help: "Per-identifier failures by stage",
		}, []string{"stage"}),

		RowsParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliation_rows_parsed_total",
			Help: "Affiliation rows produced from registry records",
		}),

		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliation_searches_total",
			Help: "Search calls by outcome",
		}, []string{"outcome"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "affiliation_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),

		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "affiliation_http_request_duration_seconds",
			Help:    "Duration of API requests by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler exposes the instance's collectors in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one registry HTTP call.
func (m *Metrics) ObserveRequest(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Requests.WithLabelValues(endpoint, outcome).Inc()
	m.RequestLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncRecordError records a per-identifier failure.
func (m *Metrics) IncRecordError(stage string) {
	if m != nil {
		m.RecordErrors.WithLabelValues(stage).Inc()
	}
}

// AddRows records parsed rows.
func (m *Metrics) AddRows(n int) {
	if m != nil {
		m.RowsParsed.Add(float64(n))
	}
}

// IncSearch records a finished search call.
func (m *Metrics) IncSearch(aborted bool) {
	if m == nil {
		return
	}
	outcome := "completed"
	if aborted {
		outcome = "aborted"
	}
	m.Searches.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}
