// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry searches the public researcher registry by e-mail domain,
// fetches each matching record, and flattens employment summaries into
// affiliation rows while recording per-call telemetry.
//
// See docs/ARCHITECTURE § Registry Search.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/affiliation-engine/internal/httputil"
	"github.com/pdiddy/affiliation-engine/internal/metrics"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

const (
	recordAccept = "application/vnd.orcid+json"
	maxBodyBytes = 16 << 20
)

// Client queries the registry. A Client may be reused for sequential
// searches; every call gets its own telemetry.
type Client struct {
	http    *http.Client
	cfg     types.RegistryConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	w       io.Writer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for registry calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the structured event logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithProgress sets a writer for human-readable per-record status lines.
func WithProgress(w io.Writer) Option {
	return func(c *Client) {
		c.w = w
	}
}

// WithRecordDelay overrides the pause between consecutive record fetches.
func WithRecordDelay(d time.Duration) Option {
	return func(c *Client) {
		c.cfg.RecordDelay = d
	}
}

// NewClient builds a Client, filling unset config fields from the defaults.
func NewClient(cfg types.RegistryConfig, opts ...Option) *Client {
	def := types.DefaultConfig().Registry
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.PageSize <= 0 || cfg.PageSize > def.PageSize {
		cfg.PageSize = def.PageSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.RecordDelay < 0 {
		cfg.RecordDelay = 0
	}

	c := &Client{
		cfg: cfg,
		w:   io.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = def.Timeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// errStop signals that the call was aborted and the recorder already holds
// the reason.
var errStop = errors.New("search stopped")

// search is the state of one SearchByDomains call.
type search struct {
	c       *Client
	rec     *recorder
	rows    []types.AffiliationRecord
	seen    map[string]bool
	fetches int
}

// SearchByDomains finds researchers whose public e-mail matches any of the
// domains, fetches each record, and returns the flattened rows with the
// call's telemetry. maxResults caps identifiers requested per query.
//
// Only validation failures are returned as errors, before any request is
// made. A failed or timed-out search request ends the call early and is
// reported through the telemetry together with the rows gathered so far;
// per-identifier failures are recorded and skipped.
func (c *Client) SearchByDomains(ctx context.Context, domains []string, maxResults int) ([]types.AffiliationRecord, *types.SearchTelemetry, error) {
	normalized, err := NormalizeDomains(domains)
	if err != nil {
		return nil, nil, err
	}
	if maxResults <= 0 {
		return nil, nil, ErrInvalidMaxResults
	}

	if c.cfg.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.OverallTimeout)
		defer cancel()
	}

	s := &search{
		c:    c,
		rec:  newRecorder(uuid.NewString(), c.logger, c.metrics, c.w),
		rows: []types.AffiliationRecord{},
		seen: make(map[string]bool),
	}
	start := time.Now()
	s.rec.logger.InfoContext(ctx, "registry search started",
		"domains", normalized,
		"max_results", maxResults,
		"mode", string(c.cfg.Mode),
		"per_domain", c.cfg.PerDomain,
	)

	queries := []string{BuildDomainQuery(normalized)}
	if c.cfg.PerDomain {
		queries = queries[:0]
		for _, d := range normalized {
			queries = append(queries, BuildDomainQuery([]string{d}))
		}
	}

	for _, q := range queries {
		if err := s.runQuery(ctx, q, maxResults); err != nil {
			break
		}
	}

	tel := s.rec.tel
	c.metrics.IncSearch(tel.Aborted())
	s.rec.logger.InfoContext(ctx, "registry search finished",
		"total_found", tel.TotalFound,
		"processed", tel.Processed,
		"successful", tel.Successful,
		"errors", tel.Errors,
		"rows", len(s.rows),
		"aborted", tel.Aborted(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return s.rows, tel, nil
}

// runQuery pages through one query's hits until maxResults identifiers have
// been requested or the registry has no more.
func (s *search) runQuery(ctx context.Context, query string, maxResults int) error {
	collected := 0
	for collected < maxResults {
		rows := min(s.c.cfg.PageSize, maxResults-collected)
		page, err := s.c.fetchPage(ctx, query, collected, rows)
		if err != nil {
			s.rec.abort(ctx, abortStage(ctx), &StageError{Stage: types.StageSearch, Err: err})
			return errStop
		}
		if collected == 0 {
			s.rec.found(page.NumFound)
		}
		s.rec.logger.DebugContext(ctx, "registry page fetched",
			"start", collected,
			"rows", len(page.Identifiers),
			"num_found", page.NumFound,
		)
		if len(page.Identifiers) == 0 {
			return nil
		}

		for _, id := range page.Identifiers {
			if err := s.process(ctx, id); err != nil {
				return err
			}
		}

		collected += len(page.Identifiers)
		if collected >= page.NumFound {
			return nil
		}
	}
	return nil
}

// process fetches and parses one identifier. It returns errStop only when
// the overall deadline has passed.
func (s *search) process(ctx context.Context, identifier string) error {
	if s.seen[identifier] {
		return nil
	}
	s.seen[identifier] = true

	if s.fetches > 0 {
		if err := sleep(ctx, s.c.cfg.RecordDelay); err != nil {
			s.rec.abort(ctx, types.StageTimeout, err)
			return errStop
		}
	} else if err := ctx.Err(); err != nil {
		s.rec.abort(ctx, types.StageTimeout, err)
		return errStop
	}
	s.fetches++

	s.rec.attempt(identifier)

	body, err := s.c.fetchRecord(ctx, identifier)
	if err != nil {
		if ctx.Err() != nil {
			s.rec.failure(ctx, identifier, types.StageTimeout, err)
			return errStop
		}
		s.rec.failure(ctx, identifier, types.StageRecordFetching, err)
		return nil
	}

	parsed, err := ParseRecord(identifier, body)
	if err != nil {
		s.rec.failure(ctx, identifier, types.StageRecordParsing, err)
		return nil
	}

	s.rows = append(s.rows, parsed.Rows...)
	s.rec.success(ctx, identifier, len(parsed.Rows))
	return nil
}

// fetchPage issues one search request.
func (c *Client) fetchPage(ctx context.Context, query string, start, rows int) (searchPage, error) {
	endpoint, accept := "/expanded-search/", "application/json"
	if c.cfg.Mode == types.ModeSearch {
		endpoint, accept = "/search/", "application/xml"
	}
	params := url.Values{
		"q":     {query},
		"start": {strconv.Itoa(start)},
		"rows":  {strconv.Itoa(rows)},
	}

	began := time.Now()
	page, err := c.getPage(ctx, c.cfg.BaseURL+endpoint+"?"+params.Encode(), accept)
	c.metrics.ObserveRequest("search", time.Since(began), err)
	return page, err
}

func (c *Client) getPage(ctx context.Context, reqURL, accept string) (searchPage, error) {
	resp, err := c.get(ctx, reqURL, accept)
	if err != nil {
		return searchPage{}, err
	}
	defer resp.Body.Close()
	return decodeSearchPage(c.cfg.Mode, io.LimitReader(resp.Body, maxBodyBytes))
}

// fetchRecord retrieves the full record document for identifier.
func (c *Client) fetchRecord(ctx context.Context, identifier string) ([]byte, error) {
	began := time.Now()
	body, err := c.getRecord(ctx, identifier)
	c.metrics.ObserveRequest("record", time.Since(began), err)
	return body, err
}

func (c *Client) getRecord(ctx context.Context, identifier string) ([]byte, error) {
	reqURL := c.cfg.BaseURL + "/" + url.PathEscape(identifier) + "/record"
	resp, err := c.get(ctx, reqURL, recordAccept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading record body: %w", err)
	}
	return body, nil
}

// get performs a GET with retry on 429 and fails on any non-2xx status.
func (c *Client) get(ctx context.Context, reqURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries, c.logger)
	if err != nil {
		return nil, fmt.Errorf("registry request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		return nil, fmt.Errorf("registry returned HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

// abortStage classifies a search-request failure.
func abortStage(ctx context.Context) string {
	if ctx.Err() != nil {
		return types.StageTimeout
	}
	return types.StageSearch
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
