// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package merge reconciles a freshly fetched affiliation table with a
// previously loaded one. Existing rows come first and win on key collision;
// every returned row carries a provenance tag and a recomputed duration.
//
// See docs/ARCHITECTURE § Merge.
package merge

import (
	"fmt"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Error reports a row that cannot be merged without losing data.
type Error struct {
	// Table is "existing" or "new".
	Table  string
	Row    int
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("merge: %s row %d: %s", e.Table, e.Row, e.Reason)
}

// Result is the merged table and how many rows were dropped as duplicates.
type Result struct {
	Rows              []types.AffiliationRecord
	DuplicatesRemoved int
}

// Merge combines newRows and existing into one table. Rows are taken in the
// order existing then new; a row whose dedup key was already seen is
// dropped. The key is (identifier, relation role, start year, end year),
// extended with the e-mail addresses column when cfg.DedupIncludeEmail is
// set.
//
// When either input is empty the other is returned without deduplication,
// but still normalized. Inputs are never modified and the result shares no
// pointers with them.
func Merge(newRows, existing []types.AffiliationRecord, cfg types.MergeConfig) (Result, error) {
	source := cfg.DefaultSource
	if source == "" {
		source = types.SourceFileUpload
	}

	ex, err := normalize("existing", existing, source)
	if err != nil {
		return Result{}, err
	}
	nw, err := normalize("new", newRows, source)
	if err != nil {
		return Result{}, err
	}

	switch {
	case len(nw) == 0:
		return Result{Rows: ex}, nil
	case len(ex) == 0:
		return Result{Rows: nw}, nil
	}

	out := make([]types.AffiliationRecord, 0, len(ex)+len(nw))
	seen := make(map[dedupKey]bool, len(ex)+len(nw))
	removed := 0
	for _, rows := range [][]types.AffiliationRecord{ex, nw} {
		for _, r := range rows {
			k := keyOf(r, cfg.DedupIncludeEmail)
			if seen[k] {
				removed++
				continue
			}
			seen[k] = true
			out = append(out, r)
		}
	}
	return Result{Rows: out, DuplicatesRemoved: removed}, nil
}

// Dedup removes key duplicates from one table, keeping first occurrences.
func Dedup(rows []types.AffiliationRecord, cfg types.MergeConfig) (Result, error) {
	res, err := Merge(nil, rows, cfg)
	if err != nil {
		return Result{}, err
	}
	out := res.Rows[:0]
	seen := make(map[dedupKey]bool, len(res.Rows))
	for _, r := range res.Rows {
		k := keyOf(r, cfg.DedupIncludeEmail)
		if seen[k] {
			res.DuplicatesRemoved++
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	res.Rows = out
	return res, nil
}

// normalize copies rows, backfills the source tag, and recomputes duration.
// It always returns a non-nil slice.
func normalize(table string, rows []types.AffiliationRecord, source string) ([]types.AffiliationRecord, error) {
	out := make([]types.AffiliationRecord, 0, len(rows))
	for i, r := range rows {
		if r.Identifier == "" {
			return nil, &Error{Table: table, Row: i, Reason: "missing identifier"}
		}
		if r.RelationRole == "" {
			return nil, &Error{Table: table, Row: i, Reason: "missing relation role"}
		}
		c := r.Clone()
		if c.Source == "" {
			c.Source = source
		}
		c.Duration = types.ComputeDuration(c.StartYear, c.EndYear)
		out = append(out, c)
	}
	return out, nil
}

type dedupKey struct {
	identifier string
	role       string
	start, end optionalYear
	emails     string
}

type optionalYear struct {
	set  bool
	year int
}

func year(p *int) optionalYear {
	if p == nil {
		return optionalYear{}
	}
	return optionalYear{set: true, year: *p}
}

func keyOf(r types.AffiliationRecord, withEmail bool) dedupKey {
	k := dedupKey{
		identifier: r.Identifier,
		role:       r.RelationRole,
		start:      year(r.StartYear),
		end:        year(r.EndYear),
	}
	if withEmail {
		k.emails = types.Deref(r.EmailAddresses)
	}
	return k
}
