// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Stage tags carried by ErrorDetail.Stage.
const (
	StageSearch         = "search"
	StageRecordFetching = "record_fetching"
	StageRecordParsing  = "record_parsing"
	StageTimeout        = "timeout"
)

// ErrorDetail describes one failure recorded during a search run.
// Identifier is empty for search-level failures.
type ErrorDetail struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Error      string `json:"error" yaml:"error"`
	Stage      string `json:"stage" yaml:"stage"`
}

// SearchTelemetry holds the counters and error list produced by one search
// invocation. It is written only by the search client during the call and is
// read-only once returned.
type SearchTelemetry struct {
	// RunID identifies the search invocation in logs and reports.
	RunID string `json:"run_id" yaml:"run_id"`

	// TotalFound is the registry-reported hit count, summed across domains
	// when searching per domain.
	TotalFound int `json:"total_found" yaml:"total_found"`

	Processed  int `json:"processed" yaml:"processed"`
	Successful int `json:"successful" yaml:"successful"`
	Errors     int `json:"errors" yaml:"errors"`

	// Identifiers lists every identifier the client attempted, in order,
	// including those whose fetch later failed.
	Identifiers []string `json:"identifiers" yaml:"identifiers"`

	ErrorDetails []ErrorDetail `json:"error_details" yaml:"error_details"`
}

// NewSearchTelemetry returns telemetry with empty, non-nil lists.
func NewSearchTelemetry(runID string) *SearchTelemetry {
	return &SearchTelemetry{
		RunID:        runID,
		Identifiers:  []string{},
		ErrorDetails: []ErrorDetail{},
	}
}

// Aborted reports whether the run ended on a search-level or timeout failure.
func (t *SearchTelemetry) Aborted() bool {
	for _, d := range t.ErrorDetails {
		if d.Stage == StageSearch || d.Stage == StageTimeout {
			return true
		}
	}
	return false
}

// NoMatches reports whether the registry answered but matched nothing.
func (t *SearchTelemetry) NoMatches() bool {
	return !t.Aborted() && t.TotalFound == 0 && len(t.Identifiers) == 0
}
