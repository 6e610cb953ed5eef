// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// ParseResult holds the rows and public e-mail addresses parsed from one record.
type ParseResult struct {
	Rows   []types.AffiliationRecord
	Emails []string
}

// ParseRecord decodes a raw registry record document and flattens its
// employment summaries into affiliation rows. Missing sections yield absent
// values; a document of the wrong shape (for example a list where an object
// is expected) fails with a record_parsing StageError.
func ParseRecord(identifier string, data []byte) (ParseResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return ParseResult{}, parseError(identifier, fmt.Errorf("decoding record: %w", err))
	}
	record, ok := doc.(map[string]any)
	if !ok {
		return ParseResult{}, parseError(identifier, fmt.Errorf("record is %s, want object", kind(doc)))
	}
	return ParseRecordTree(identifier, record)
}

// ParseRecordTree flattens an already-decoded record.
func ParseRecordTree(identifier string, record map[string]any) (ParseResult, error) {
	givenNames, err := stringAt(record, "person", "name", "given-names", "value")
	if err != nil {
		return ParseResult{}, parseError(identifier, err)
	}
	familyName, err := stringAt(record, "person", "name", "family-name", "value")
	if err != nil {
		return ParseResult{}, parseError(identifier, err)
	}

	emails, err := publicEmails(record)
	if err != nil {
		return ParseResult{}, parseError(identifier, err)
	}

	summaries, err := employmentSummaries(record)
	if err != nil {
		return ParseResult{}, parseError(identifier, err)
	}

	joined := types.StringPtr(strings.Join(emails, ", "))
	rows := make([]types.AffiliationRecord, 0, len(summaries))
	for i, emp := range summaries {
		row, err := employmentRow(emp)
		if err != nil {
			return ParseResult{}, parseError(identifier, fmt.Errorf("employment %d: %w", i, err))
		}
		row.Identifier = identifier
		row.GivenNames = types.StringPtr(givenNames)
		row.FamilyName = types.StringPtr(familyName)
		row.EmailAddresses = joined
		rows = append(rows, row)
	}

	return ParseResult{Rows: rows, Emails: emails}, nil
}

// publicEmails returns the addresses whose visibility is public, in record
// order with duplicates dropped. Other visibilities are skipped silently.
func publicEmails(record map[string]any) ([]string, error) {
	items, err := listAt(record, "person", "emails", "email")
	if err != nil {
		return nil, err
	}

	emails := []string{}
	seen := make(map[string]bool)
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("person.emails.email[%d] is %s, want object", i, kind(item))
		}
		addr, err := stringAt(entry, "email")
		if err != nil {
			return nil, err
		}
		visibility, err := stringAt(entry, "visibility")
		if err != nil {
			return nil, err
		}
		addr = strings.TrimSpace(addr)
		if addr == "" || !strings.EqualFold(visibility, "public") || seen[addr] {
			continue
		}
		seen[addr] = true
		emails = append(emails, addr)
	}
	return emails, nil
}

// employmentSummaries collects employment summaries from both the flat
// employment-summary list and the grouped affiliation-group layout.
func employmentSummaries(record map[string]any) ([]map[string]any, error) {
	employments, err := objectAt(record, "activities-summary", "employments")
	if err != nil || employments == nil {
		return nil, err
	}

	var out []map[string]any

	flat, err := listAt(employments, "employment-summary")
	if err != nil {
		return nil, err
	}
	for i, item := range flat {
		emp, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("employment-summary[%d] is %s, want object", i, kind(item))
		}
		out = append(out, emp)
	}

	groups, err := listAt(employments, "affiliation-group")
	if err != nil {
		return nil, err
	}
	for i, g := range groups {
		group, ok := g.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("affiliation-group[%d] is %s, want object", i, kind(g))
		}
		summaries, err := listAt(group, "summaries")
		if err != nil {
			return nil, err
		}
		for j, s := range summaries {
			wrapper, ok := s.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("affiliation-group[%d].summaries[%d] is %s, want object", i, j, kind(s))
			}
			emp, err := objectAt(wrapper, "employment-summary")
			if err != nil {
				return nil, err
			}
			if emp != nil {
				out = append(out, emp)
			}
		}
	}
	return out, nil
}

func employmentRow(emp map[string]any) (types.AffiliationRecord, error) {
	row := types.AffiliationRecord{
		RelationRole: types.RoleEmployment,
		Source:       types.SourceRegistry,
	}

	fields := []struct {
		dst  **string
		path []string
	}{
		{&row.RelationTitle, []string{"role-title"}},
		{&row.Department, []string{"department-name"}},
		{&row.OrganizationName, []string{"organization", "name"}},
		{&row.IdentifierType, []string{"organization", "disambiguated-organization", "disambiguation-source"}},
		{&row.IdentifierValue, []string{"organization", "disambiguated-organization", "disambiguated-organization-identifier"}},
	}
	for _, f := range fields {
		s, err := stringAt(emp, f.path...)
		if err != nil {
			return row, err
		}
		*f.dst = types.StringPtr(strings.TrimSpace(s))
	}

	var err error
	if row.StartYear, err = yearAt(emp, "start-date", "year", "value"); err != nil {
		return row, err
	}
	if row.EndYear, err = yearAt(emp, "end-date", "year", "value"); err != nil {
		return row, err
	}
	row.Duration = types.ComputeDuration(row.StartYear, row.EndYear)

	if row.CreatedAt, err = millisAt(emp, "created-date", "value"); err != nil {
		return row, err
	}
	if row.ModifiedAt, err = millisAt(emp, "last-modified-date", "value"); err != nil {
		return row, err
	}
	return row, nil
}

// lookup walks path through nested objects. A missing or null key yields
// (nil, nil); a non-object on the way is a shape error.
func lookup(m map[string]any, path ...string) (any, error) {
	var cur any = m
	for i, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s is %s, want object", strings.Join(path[:i], "."), kind(cur))
		}
		v, ok := obj[key]
		if !ok || v == nil {
			return nil, nil
		}
		cur = v
	}
	return cur, nil
}

func objectAt(m map[string]any, path ...string) (map[string]any, error) {
	v, err := lookup(m, path...)
	if err != nil || v == nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s is %s, want object", strings.Join(path, "."), kind(v))
	}
	return obj, nil
}

func listAt(m map[string]any, path ...string) ([]any, error) {
	v, err := lookup(m, path...)
	if err != nil || v == nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is %s, want list", strings.Join(path, "."), kind(v))
	}
	return list, nil
}

// stringAt returns the scalar at path as a string. Numbers and booleans are
// formatted; objects and lists are shape errors.
func stringAt(m map[string]any, path ...string) (string, error) {
	v, err := lookup(m, path...)
	if err != nil || v == nil {
		return "", err
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", fmt.Errorf("%s is %s, want scalar", strings.Join(path, "."), kind(v))
	}
}

// yearAt coerces the value at path to a calendar year. Non-numeric values
// are absent, not errors.
func yearAt(m map[string]any, path ...string) (*int, error) {
	v, err := lookup(m, path...)
	if err != nil || v == nil {
		return nil, err
	}
	return coerceInt(v), nil
}

// millisAt reads an epoch-milliseconds timestamp. Non-numeric values are absent.
func millisAt(m map[string]any, path ...string) (*time.Time, error) {
	v, err := lookup(m, path...)
	if err != nil || v == nil {
		return nil, err
	}
	ms := coerceInt64(v)
	if ms == nil {
		return nil, nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t, nil
}

// coerceInt coerces a year value. Values beyond the int32 range are absent.
func coerceInt(v any) *int {
	n := coerceInt64(v)
	if n == nil || *n > math.MaxInt32 || *n < math.MinInt32 {
		return nil
	}
	i := int(*n)
	return &i
}

func coerceInt64(v any) *int64 {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	n := int64(f)
	return &n
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "list"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
