// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Report is the on-disk record of one search run: what was asked, what the
// registry answered, and how many rows came out.
type Report struct {
	RunID      string                `yaml:"run_id"`
	Domains    []string              `yaml:"domains"`
	MaxResults int                   `yaml:"max_results"`
	Mode       types.SearchMode      `yaml:"mode"`
	PerDomain  bool                  `yaml:"per_domain"`
	Rows       int                   `yaml:"rows"`
	Timestamp  time.Time             `yaml:"timestamp"`
	Telemetry  types.SearchTelemetry `yaml:"telemetry"`
}

// NewReport builds a Report for a finished search.
func NewReport(domains []string, maxResults int, cfg types.RegistryConfig, rows []types.AffiliationRecord, tel *types.SearchTelemetry) Report {
	r := Report{
		Domains:    domains,
		MaxResults: maxResults,
		Mode:       cfg.Mode,
		PerDomain:  cfg.PerDomain,
		Rows:       len(rows),
		Timestamp:  time.Now().UTC(),
	}
	if tel != nil {
		r.RunID = tel.RunID
		r.Telemetry = *tel
	}
	return r
}

// WriteReport saves a run report to a YAML file.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadReport loads a previously saved run report.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return &r, nil
}

// Status returns a one-line outcome that tells an empty result apart from
// a failed registry call.
func Status(tel *types.SearchTelemetry) string {
	switch {
	case tel == nil:
		return "No search has been run."
	case tel.Aborted() && tel.Processed == 0:
		return "Registry call failed: " + abortMessage(tel)
	case tel.Aborted():
		return fmt.Sprintf("Registry call failed after %d record(s); partial results kept: %s", tel.Processed, abortMessage(tel))
	case tel.NoMatches():
		return "Registry returned zero matches."
	default:
		return fmt.Sprintf("Registry returned %d match(es); %d record(s) fetched.", tel.TotalFound, tel.Successful)
	}
}

func abortMessage(tel *types.SearchTelemetry) string {
	for i := len(tel.ErrorDetails) - 1; i >= 0; i-- {
		d := tel.ErrorDetails[i]
		if d.Stage == types.StageSearch || d.Stage == types.StageTimeout {
			return fmt.Sprintf("[%s] %s", d.Stage, d.Error)
		}
	}
	return "unknown error"
}

// FormatTelemetry writes a human-readable run summary to w.
func FormatTelemetry(tel *types.SearchTelemetry, w io.Writer) {
	fmt.Fprintln(w, Status(tel))
	if tel == nil {
		return
	}
	fmt.Fprintf(w, "\nTotal found: %d  Processed: %d  Successful: %d  Errors: %d\n",
		tel.TotalFound, tel.Processed, tel.Successful, tel.Errors)

	if len(tel.ErrorDetails) > 0 {
		fmt.Fprintf(w, "\n%-22s  %-16s  %s\n", "Identifier", "Stage", "Error")
		fmt.Fprintln(w, strings.Repeat("-", 80))
		for _, d := range tel.ErrorDetails {
			id := d.Identifier
			if id == "" {
				id = "-"
			}
			fmt.Fprintf(w, "%-22s  %-16s  %s\n", id, d.Stage, d.Error)
		}
	}
}
