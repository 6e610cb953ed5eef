// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tabular

import (
	"fmt"
	"regexp"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

var identifierPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)

// Issue is a data-quality warning about one loaded row. Issues never stop a
// load; callers log them.
type Issue struct {
	Row        int    `json:"row" yaml:"row"`
	Identifier string `json:"identifier" yaml:"identifier"`
	Problem    string `json:"problem" yaml:"problem"`
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d (%s): %s", i.Row, i.Identifier, i.Problem)
}

// Validate checks identifier format and year plausibility against
// currentYear. Row numbers are 1-based data rows.
func Validate(rows []types.AffiliationRecord, currentYear int) []Issue {
	var issues []Issue
	add := func(i int, r types.AffiliationRecord, format string, args ...any) {
		issues = append(issues, Issue{Row: i + 1, Identifier: r.Identifier, Problem: fmt.Sprintf(format, args...)})
	}
	for i, r := range rows {
		if !identifierPattern.MatchString(r.Identifier) {
			add(i, r, "identifier %q is not in 0000-0000-0000-000X form", r.Identifier)
		}
		if r.StartYear != nil && *r.StartYear > currentYear {
			add(i, r, "start year %d is in the future", *r.StartYear)
		}
		if r.StartYear != nil && r.EndYear != nil && *r.EndYear < *r.StartYear {
			add(i, r, "end year %d is before start year %d", *r.EndYear, *r.StartYear)
		}
	}
	return issues
}
