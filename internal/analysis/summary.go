// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analysis

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

const (
	topDepartments = 10
	topTitles      = 5
)

// Count is one value of a categorical distribution.
type Count struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// YearCount is one bucket of the start-year histogram.
type YearCount struct {
	Year  int `json:"year" yaml:"year"`
	Count int `json:"count" yaml:"count"`
}

// PairCount counts rows sharing a department and role.
type PairCount struct {
	Department string `json:"department" yaml:"department"`
	Role       string `json:"role" yaml:"role"`
	Count      int    `json:"count" yaml:"count"`
}

// DurationStats describes the durations of completed affiliations.
type DurationStats struct {
	Count  int     `json:"count" yaml:"count"`
	Min    int     `json:"min" yaml:"min"`
	Max    int     `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
}

// Summary holds the aggregate statistics of an affiliation table.
type Summary struct {
	TotalAffiliations  int `json:"total_affiliations" yaml:"total_affiliations"`
	UniqueIdentifiers  int `json:"unique_identifiers" yaml:"unique_identifiers"`
	ActiveAffiliations int `json:"active_affiliations" yaml:"active_affiliations"`

	// Durations is nil when no row has a duration.
	Durations *DurationStats `json:"durations,omitempty" yaml:"durations,omitempty"`

	Roles           []Count     `json:"roles" yaml:"roles"`
	TopDepartments  []Count     `json:"top_departments" yaml:"top_departments"`
	TopTitles       []Count     `json:"top_titles" yaml:"top_titles"`
	Sources         []Count     `json:"sources" yaml:"sources"`
	StartYears      []YearCount `json:"start_years" yaml:"start_years"`
	DepartmentRoles []PairCount `json:"department_roles" yaml:"department_roles"`
}

// AverageDuration returns the mean duration, or nil when there is none.
func (s Summary) AverageDuration() *float64 {
	if s.Durations == nil {
		return nil
	}
	m := s.Durations.Mean
	return &m
}

// Summarize computes the statistics of rows. Distributions are ordered by
// descending count, ties broken by value.
func Summarize(rows []types.AffiliationRecord) Summary {
	s := Summary{TotalAffiliations: len(rows)}

	ids := map[string]bool{}
	roles := map[string]int{}
	depts := map[string]int{}
	titles := map[string]int{}
	sources := map[string]int{}
	years := map[int]int{}
	pairs := map[[2]string]int{}
	var durations []int

	for _, r := range rows {
		ids[r.Identifier] = true
		if r.Active() {
			s.ActiveAffiliations++
		}
		roles[r.RelationRole]++
		sources[r.Source]++
		if r.Department != nil {
			depts[*r.Department]++
			pairs[[2]string{*r.Department, r.RelationRole}]++
		}
		if r.RelationTitle != nil {
			titles[*r.RelationTitle]++
		}
		if r.StartYear != nil {
			years[*r.StartYear]++
		}
		if r.Duration != nil {
			durations = append(durations, *r.Duration)
		}
	}

	s.UniqueIdentifiers = len(ids)
	s.Roles = ranked(roles, 0)
	s.TopDepartments = ranked(depts, topDepartments)
	s.TopTitles = ranked(titles, topTitles)
	s.Sources = ranked(sources, 0)
	s.StartYears = histogram(years)
	s.DepartmentRoles = pairCounts(pairs)
	s.Durations = durationStats(durations)
	return s
}

func ranked(m map[string]int, limit int) []Count {
	out := make([]Count, 0, len(m))
	for v, n := range m {
		out = append(out, Count{Value: v, Count: n})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func histogram(m map[int]int) []YearCount {
	out := make([]YearCount, 0, len(m))
	for y, n := range m {
		out = append(out, YearCount{Year: y, Count: n})
	}
	slices.SortFunc(out, func(a, b YearCount) int { return cmp.Compare(a.Year, b.Year) })
	return out
}

func pairCounts(m map[[2]string]int) []PairCount {
	out := make([]PairCount, 0, len(m))
	for k, n := range m {
		out = append(out, PairCount{Department: k[0], Role: k[1], Count: n})
	}
	slices.SortFunc(out, func(a, b PairCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Department, b.Department); c != 0 {
			return c
		}
		return cmp.Compare(a.Role, b.Role)
	})
	return out
}

func durationStats(d []int) *DurationStats {
	if len(d) == 0 {
		return nil
	}
	d = slices.Clone(d)
	slices.Sort(d)
	sum := 0
	for _, v := range d {
		sum += v
	}
	st := &DurationStats{
		Count: len(d),
		Min:   d[0],
		Max:   d[len(d)-1],
		Mean:  float64(sum) / float64(len(d)),
	}
	mid := len(d) / 2
	if len(d)%2 == 1 {
		st.Median = float64(d[mid])
	} else {
		st.Median = float64(d[mid-1]+d[mid]) / 2
	}
	return st
}

// Format writes a human-readable summary to w.
func Format(s Summary, w io.Writer) {
	fmt.Fprintf(w, "Total affiliations:  %d\n", s.TotalAffiliations)
	fmt.Fprintf(w, "Unique identifiers:  %d\n", s.UniqueIdentifiers)
	fmt.Fprintf(w, "Active affiliations: %d\n", s.ActiveAffiliations)
	if s.Durations != nil {
		fmt.Fprintf(w, "Avg duration (years): %.1f (median %.1f, range %d-%d)\n",
			s.Durations.Mean, s.Durations.Median, s.Durations.Min, s.Durations.Max)
	} else {
		fmt.Fprintln(w, "Avg duration (years): N/A")
	}

	section := func(title string, counts []Count) {
		if len(counts) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
		for _, c := range counts {
			fmt.Fprintf(w, "  %-50s %6d\n", c.Value, c.Count)
		}
	}
	section("Roles", s.Roles)
	section("Top departments", s.TopDepartments)
	section("Top titles", s.TopTitles)
	section("Sources", s.Sources)

	if len(s.StartYears) > 0 {
		fmt.Fprintf(w, "\nStart years\n-----------\n")
		for _, y := range s.StartYears {
			fmt.Fprintf(w, "  %d %6d\n", y.Year, y.Count)
		}
	}
}
