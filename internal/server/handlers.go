// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/affiliation-engine/internal/analysis"
	"github.com/pdiddy/affiliation-engine/internal/merge"
	"github.com/pdiddy/affiliation-engine/internal/registry"
	"github.com/pdiddy/affiliation-engine/internal/tabular"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

const maxSearchBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rows":   len(s.snapshot()),
	})
}

type rowsResponse struct {
	Count int                       `json:"count"`
	Rows  []types.AffiliationRecord `json:"rows"`
}

func (s *Server) handleAffiliations(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := f.Apply(s.snapshot())
	writeJSON(w, http.StatusOK, rowsResponse{Count: len(rows), Rows: rows})
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, analysis.FacetsOf(s.snapshot()))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis.Summarize(f.Apply(s.snapshot())))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="filtered_affiliations.csv"`)
	if err := tabular.WriteCSV(w, f.Apply(s.snapshot())); err != nil {
		s.logger.ErrorContext(r.Context(), "csv export failed", "error", err)
	}
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="filtered_affiliations.xlsx"`)
	if err := tabular.WriteXLSX(w, f.Apply(s.snapshot())); err != nil {
		s.logger.ErrorContext(r.Context(), "xlsx export failed", "error", err)
	}
}

type telemetryResponse struct {
	Status    string                 `json:"status"`
	Telemetry *types.SearchTelemetry `json:"telemetry,omitempty"`
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, telemetryResponse{Status: registry.Status(last), Telemetry: last})
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Domains    []string `json:"domains"`
	MaxResults int      `json:"max_results"`
	// Merge folds the results into the served dataset.
	Merge bool `json:"merge"`
}

// SearchResponse is the reply to POST /api/search.
type SearchResponse struct {
	Status            string                    `json:"status"`
	Rows              []types.AffiliationRecord `json:"rows"`
	Telemetry         *types.SearchTelemetry    `json:"telemetry"`
	Merged            bool                      `json:"merged"`
	DatasetRows       int                       `json:"dataset_rows"`
	DuplicatesRemoved int                       `json:"duplicates_removed"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "registry search is not configured")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	rows, tel, err := s.searcher.SearchByDomains(ctx, req.Domains, req.MaxResults)
	if err != nil {
		if errors.Is(err, registry.ErrNoDomains) || errors.Is(err, registry.ErrInvalidDomain) ||
			errors.Is(err, registry.ErrInvalidMaxResults) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.ErrorContext(ctx, "search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := SearchResponse{
		Status:    registry.Status(tel),
		Rows:      rows,
		Telemetry: tel,
	}

	s.mu.Lock()
	s.last = tel
	if req.Merge {
		res, err := merge.Merge(rows, s.rows, s.mergeCfg)
		if err != nil {
			s.mu.Unlock()
			s.logger.ErrorContext(ctx, "merge failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.rows = res.Rows
		resp.Merged = true
		resp.DuplicatesRemoved = res.DuplicatesRemoved
	}
	current := s.rows
	s.mu.Unlock()
	resp.DatasetRows = len(current)

	if req.Merge && s.persist != nil {
		if err := s.persist(ctx, current); err != nil {
			s.logger.ErrorContext(ctx, "saving dataset failed", "error", err)
			writeError(w, http.StatusInternalServerError, "saving dataset failed")
			return
		}
	}

	s.logger.InfoContext(ctx, "search served",
		"run_id", tel.RunID,
		"rows", len(rows),
		"merged", resp.Merged,
		"dataset_rows", resp.DatasetRows,
	)
	writeJSON(w, http.StatusOK, resp)
}

// ParseFilter reads a Filter from query parameters. role, department and
// source may repeat or hold comma-separated values; from and to are years.
func ParseFilter(q url.Values) (analysis.Filter, error) {
	f := analysis.Filter{
		Roles:       listParam(q, "role"),
		Departments: listParam(q, "department"),
		Sources:     listParam(q, "source"),
	}
	for _, p := range []struct {
		name string
		dst  **int
	}{{"from", &f.YearFrom}, {"to", &f.YearTo}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return analysis.Filter{}, fmt.Errorf("invalid %s year %q", p.name, v)
		}
		*p.dst = &n
	}
	return f, nil
}

func listParam(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
