// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/affiliation-engine/internal/metrics"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// recorder threads one SearchTelemetry through a single search call and
// mirrors each event to the logger, metrics and progress writer. A recorder
// is never shared between calls.
type recorder struct {
	tel     *types.SearchTelemetry
	logger  *slog.Logger
	metrics *metrics.Metrics
	w       io.Writer
}

func newRecorder(runID string, logger *slog.Logger, m *metrics.Metrics, w io.Writer) *recorder {
	return &recorder{
		tel:     types.NewSearchTelemetry(runID),
		logger:  logger.With("run_id", runID),
		metrics: m,
		w:       w,
	}
}

func (r *recorder) found(n int) {
	r.tel.TotalFound += n
}

// attempt registers intent to fetch identifier.
func (r *recorder) attempt(identifier string) {
	r.tel.Identifiers = append(r.tel.Identifiers, identifier)
	r.tel.Processed++
}

func (r *recorder) success(ctx context.Context, identifier string, rows int) {
	r.tel.Successful++
	r.metrics.AddRows(rows)
	r.logger.DebugContext(ctx, "registry record parsed", "identifier", identifier, "rows", rows)
	fmt.Fprintf(r.w, "fetched: %s (%d affiliations)\n", identifier, rows)
}

// failure records a per-identifier failure. The batch continues.
func (r *recorder) failure(ctx context.Context, identifier, stage string, err error) {
	r.tel.Errors++
	r.tel.ErrorDetails = append(r.tel.ErrorDetails, types.ErrorDetail{
		Identifier: identifier,
		Error:      cause(err),
		Stage:      stage,
	})
	r.metrics.IncRecordError(stage)
	r.logger.WarnContext(ctx, "registry record failed",
		"identifier", identifier,
		"stage", stage,
		"error", cause(err),
	)
	fmt.Fprintf(r.w, "failed:  %s [%s] (%s)\n", identifier, stage, cause(err))
}

// abort records a failure that ends the call. Counters are left alone.
func (r *recorder) abort(ctx context.Context, stage string, err error) {
	r.tel.ErrorDetails = append(r.tel.ErrorDetails, types.ErrorDetail{
		Error: cause(err),
		Stage: stage,
	})
	r.logger.ErrorContext(ctx, "registry search aborted",
		"stage", stage,
		"error", cause(err),
	)
	fmt.Fprintf(r.w, "aborted: [%s] %s\n", stage, cause(err))
}
