// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes an affiliation dataset over HTTP: filtered rows,
// summary statistics, CSV/XLSX export, and registry searches whose results
// can be merged into the served dataset.
//
// See docs/ARCHITECTURE § HTTP API.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pdiddy/affiliation-engine/internal/metrics"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Searcher runs a registry search.
type Searcher interface {
	SearchByDomains(ctx context.Context, domains []string, maxResults int) ([]types.AffiliationRecord, *types.SearchTelemetry, error)
}

// PersistFunc saves the served dataset after it changes.
type PersistFunc func(ctx context.Context, rows []types.AffiliationRecord) error

// Server holds the served dataset and the last search telemetry.
type Server struct {
	searcher Searcher
	mergeCfg types.MergeConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	persist  PersistFunc
	timeout  time.Duration

	// searchMu allows one registry search at a time.
	searchMu sync.Mutex

	mu   sync.RWMutex
	rows []types.AffiliationRecord
	last *types.SearchTelemetry
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and event logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics attaches Prometheus collectors and enables GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithPersist sets a callback run after a search merges into the dataset.
func WithPersist(fn PersistFunc) Option {
	return func(s *Server) {
		s.persist = fn
	}
}

// WithRequestTimeout bounds non-search requests. Zero disables it.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// New creates a Server serving rows. searcher may be nil, in which case
// POST /api/search answers 503.
func New(searcher Searcher, rows []types.AffiliationRecord, cfg types.MergeConfig, opts ...Option) *Server {
	if rows == nil {
		rows = []types.AffiliationRecord{}
	}
	s := &Server{
		searcher: searcher,
		mergeCfg: cfg,
		rows:     rows,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.timeout > 0 {
				r.Use(middleware.Timeout(s.timeout))
			}
			r.Get("/affiliations", s.handleAffiliations)
			r.Get("/facets", s.handleFacets)
			r.Get("/summary", s.handleSummary)
			r.Get("/export.csv", s.handleExportCSV)
			r.Get("/export.xlsx", s.handleExportXLSX)
			r.Get("/telemetry", s.handleTelemetry)
		})
		r.Post("/search", s.handleSearch)
	})
	return r
}

// snapshot returns the current rows. The slice must not be modified.
func (s *Server) snapshot() []types.AffiliationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows
}

// observe logs each request and records its metrics under the route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(route, status, elapsed)
		s.logger.InfoContext(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
