// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analysis filters affiliation tables and computes the summary
// statistics shown by the CLI and the HTTP API.
package analysis

import (
	"slices"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Filter selects rows from an affiliation table. An empty list selects
// every value.
type Filter struct {
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`

	// Departments keeps rows in the listed departments and rows with no
	// department at all.
	Departments []string `json:"departments,omitempty" yaml:"departments,omitempty"`

	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`

	// YearFrom and YearTo bound StartYear inclusively. When either is set,
	// rows without a start year are excluded.
	YearFrom *int `json:"year_from,omitempty" yaml:"year_from,omitempty"`
	YearTo   *int `json:"year_to,omitempty" yaml:"year_to,omitempty"`
}

// IsEmpty reports whether the filter selects every row.
func (f Filter) IsEmpty() bool {
	return len(f.Roles) == 0 && len(f.Departments) == 0 && len(f.Sources) == 0 &&
		f.YearFrom == nil && f.YearTo == nil
}

// Match reports whether r passes the filter.
func (f Filter) Match(r types.AffiliationRecord) bool {
	if len(f.Roles) > 0 && !slices.Contains(f.Roles, r.RelationRole) {
		return false
	}
	if len(f.Departments) > 0 && r.Department != nil && !slices.Contains(f.Departments, *r.Department) {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, r.Source) {
		return false
	}
	if f.YearFrom != nil || f.YearTo != nil {
		if r.StartYear == nil {
			return false
		}
		if f.YearFrom != nil && *r.StartYear < *f.YearFrom {
			return false
		}
		if f.YearTo != nil && *r.StartYear > *f.YearTo {
			return false
		}
	}
	return true
}

// Apply returns the rows that pass the filter, in input order.
func (f Filter) Apply(rows []types.AffiliationRecord) []types.AffiliationRecord {
	out := make([]types.AffiliationRecord, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Facets lists the distinct values a Filter can select on, sorted.
type Facets struct {
	Roles       []string `json:"roles" yaml:"roles"`
	Departments []string `json:"departments" yaml:"departments"`
	Sources     []string `json:"sources" yaml:"sources"`
	MinYear     *int     `json:"min_year,omitempty" yaml:"min_year,omitempty"`
	MaxYear     *int     `json:"max_year,omitempty" yaml:"max_year,omitempty"`
}

// FacetsOf collects the filterable values present in rows.
func FacetsOf(rows []types.AffiliationRecord) Facets {
	roles := map[string]bool{}
	depts := map[string]bool{}
	sources := map[string]bool{}
	var fc Facets
	for _, r := range rows {
		roles[r.RelationRole] = true
		if r.Department != nil {
			depts[*r.Department] = true
		}
		sources[r.Source] = true
		if y := r.StartYear; y != nil {
			if fc.MinYear == nil || *y < *fc.MinYear {
				fc.MinYear = types.IntPtr(*y)
			}
			if fc.MaxYear == nil || *y > *fc.MaxYear {
				fc.MaxYear = types.IntPtr(*y)
			}
		}
	}
	fc.Roles = sortedKeys(roles)
	fc.Departments = sortedKeys(depts)
	fc.Sources = sortedKeys(sources)
	return fc
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
