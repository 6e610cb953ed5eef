// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

const sheetName = "Affiliations"

// Save writes rows to path as CSV or XLSX depending on its extension.
func Save(path string, rows []types.AffiliationRecord) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if format == FormatXLSX {
		err = WriteXLSX(f, rows)
	} else {
		err = WriteCSV(f, rows)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteCSV writes the header row followed by one record per row.
func WriteCSV(w io.Writer, rows []types.AffiliationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(types.Columns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(cells(r)); err != nil {
			return fmt.Errorf("writing CSV row %s: %w", r.Identifier, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook. Year and duration cells are
// numeric; absent values are empty cells.
func WriteXLSX(w io.Writer, rows []types.AffiliationRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(types.Columns))
	for i, c := range types.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := typedCells(r)
		if err := f.SetSheetRow(sheetName, addr, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// cells renders a row in canonical column order.
func cells(r types.AffiliationRecord) []string {
	return []string{
		r.Identifier,
		types.Deref(r.GivenNames),
		types.Deref(r.FamilyName),
		r.RelationRole,
		types.Deref(r.RelationTitle),
		types.Deref(r.Department),
		intCell(r.StartYear),
		intCell(r.EndYear),
		intCell(r.Duration),
		timeCell(r.CreatedAt),
		timeCell(r.ModifiedAt),
		r.Source,
		types.Deref(r.IdentifierType),
		types.Deref(r.IdentifierValue),
		types.Deref(r.EmailAddresses),
		types.Deref(r.OrganizationName),
	}
}

// typedCells is cells with numeric columns kept as numbers and absent
// values as nil, so the workbook has real number and blank cells.
func typedCells(r types.AffiliationRecord) []any {
	out := make([]any, 0, len(types.Columns))
	for i, s := range cells(r) {
		switch types.Columns[i] {
		case types.ColStartYear, types.ColEndYear, types.ColDuration:
			if n, err := strconv.Atoi(s); err == nil {
				out = append(out, n)
				continue
			}
		}
		if s == "" {
			out = append(out, nil)
			continue
		}
		out = append(out, s)
	}
	return out
}

func intCell(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
