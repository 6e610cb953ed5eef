// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tabular loads and writes affiliation tables as CSV or XLSX
// spreadsheets using the canonical column headers.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Supported file formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned for a file extension other than .csv or .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// required lists headers a spreadsheet must carry.
var required = []string{types.ColIdentifier, types.ColRelationRole}

// FormatOf returns the spreadsheet format for path from its extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads an affiliation table from a .csv file or the first sheet of an
// .xlsx workbook.
func Load(path string) ([]types.AffiliationRecord, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if format == FormatXLSX {
		return ReadXLSX(f)
	}
	return ReadCSV(f)
}

// ReadCSV decodes a CSV table whose first record is the header row.
func ReadCSV(r io.Reader) ([]types.AffiliationRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	return decode(records)
}

// ReadXLSX decodes the first sheet of an XLSX workbook.
func ReadXLSX(r io.Reader) ([]types.AffiliationRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return decode(records)
}

// decode maps header-addressed records onto affiliation rows. Rows with a
// blank identifier cell are skipped; unknown columns are ignored.
func decode(records [][]string) ([]types.AffiliationRecord, error) {
	if len(records) == 0 {
		return nil, errors.New("spreadsheet is empty")
	}
	idx := headerIndex(records[0])
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	rows := []types.AffiliationRecord{}
	for _, rec := range records[1:] {
		cell := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		id := NormalizeIdentifier(cell(types.ColIdentifier))
		if id == "" {
			continue
		}
		row := types.AffiliationRecord{
			Identifier:       id,
			GivenNames:       types.StringPtr(cell(types.ColGivenNames)),
			FamilyName:       types.StringPtr(cell(types.ColFamilyName)),
			RelationRole:     cell(types.ColRelationRole),
			RelationTitle:    types.StringPtr(cell(types.ColRelationTitle)),
			Department:       types.StringPtr(cell(types.ColDepartment)),
			StartYear:        ParseYear(cell(types.ColStartYear)),
			EndYear:          ParseYear(cell(types.ColEndYear)),
			CreatedAt:        parseTime(cell(types.ColCreatedAt)),
			ModifiedAt:       parseTime(cell(types.ColModifiedAt)),
			Source:           cell(types.ColSource),
			IdentifierType:   types.StringPtr(cell(types.ColIdentifierType)),
			IdentifierValue:  types.StringPtr(cell(types.ColIdentifierValue)),
			EmailAddresses:   types.StringPtr(cell(types.ColEmailAddresses)),
			OrganizationName: types.StringPtr(cell(types.ColOrganizationName)),
		}
		row.Duration = types.ComputeDuration(row.StartYear, row.EndYear)
		rows = append(rows, row)
	}
	return rows, nil
}

// headerIndex maps canonical column names to their position. Matching
// ignores case and repeated whitespace; the first occurrence wins.
func headerIndex(header []string) map[string]int {
	canon := make(map[string]string, len(types.Columns))
	for _, c := range types.Columns {
		canon[foldHeader(c)] = c
	}
	idx := make(map[string]int)
	for i, h := range header {
		c, ok := canon[foldHeader(h)]
		if !ok {
			continue
		}
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	return idx
}

func foldHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// NormalizeIdentifier strips a registry URL prefix so that
// "https://orcid.org/0000-0001-2345-6789" joins with "0000-0001-2345-6789".
func NormalizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range []string{"https://orcid.org/", "http://orcid.org/", "orcid.org/"} {
		if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
			return s[len(p):]
		}
	}
	return s
}

// ParseYear coerces a cell to a calendar year. Integral numbers ("2015",
// "2015.0") within the int32 range parse; anything else is absent.
func ParseYear(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		y := int(n)
		return &y
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) ||
		f > math.MaxInt32 || f < math.MinInt32 {
		return nil
	}
	n := int(f)
	return &n
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01-02-06",
	"1/2/06 15:04",
	"1/2/2006",
}

// parseTime accepts the timestamp layouts seen in registry exports and
// spreadsheet cells. Unparseable values are absent.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
