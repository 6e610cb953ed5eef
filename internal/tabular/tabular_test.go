// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tabular

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

func sampleRows() []types.AffiliationRecord {
	created := time.Date(2017, 2, 22, 17, 3, 20, 0, time.UTC)
	return []types.AffiliationRecord{
		{
			Identifier:       "0000-0001-2345-6789",
			GivenNames:       types.StringPtr("Ada"),
			FamilyName:       types.StringPtr("Lovelace"),
			RelationRole:     types.RoleEmployment,
			RelationTitle:    types.StringPtr("Professor"),
			Department:       types.StringPtr("Computer Science"),
			StartYear:        types.IntPtr(2015),
			EndYear:          types.IntPtr(2020),
			Duration:         types.IntPtr(5),
			CreatedAt:        &created,
			Source:           types.SourceRegistry,
			IdentifierType:   types.StringPtr("ROR"),
			IdentifierValue:  types.StringPtr("https://ror.org/012345678"),
			EmailAddresses:   types.StringPtr("ada@example.edu, ada@other.org"),
			OrganizationName: types.StringPtr("Example University"),
		},
		{
			Identifier:   "0000-0002-0000-000X",
			RelationRole: types.RoleEmployment,
			StartYear:    types.IntPtr(2021),
			Source:       types.SourceFileUpload,
		},
	}
}

// --- CSV ---

func TestReadCSV(t *testing.T) {
	body := "orcid id, given  names ,Org Affiliation Relation Role,Start Year,End Year,Duration,Department,Notes\n" +
		"https://orcid.org/0000-0001-2345-6789,Ada,EMPLOYMENT,2015,2020.0,99,Maths,ignored\n" +
		",Nobody,EMPLOYMENT,2000,,,,\n" +
		"0000-0002-0000-0001,Bob,EMPLOYMENT,unknown,2010\n"

	rows, err := ReadCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 2, "rows without an identifier are skipped")

	first := rows[0]
	assert.Equal(t, "0000-0001-2345-6789", first.Identifier)
	assert.Equal(t, "Ada", types.Deref(first.GivenNames))
	assert.Equal(t, 2015, *first.StartYear)
	assert.Equal(t, 2020, *first.EndYear)
	require.NotNil(t, first.Duration)
	assert.Equal(t, 5, *first.Duration, "duration is recomputed, not read")
	assert.Equal(t, "Maths", types.Deref(first.Department))
	assert.Empty(t, first.Source)

	second := rows[1]
	assert.Nil(t, second.StartYear)
	assert.Equal(t, 2010, *second.EndYear)
	assert.Nil(t, second.Duration)
	assert.Nil(t, second.Department, "short records leave trailing cells absent")
}

func TestReadCSV_MissingRequiredColumn(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no identifier", "Given Names,Org Affiliation Relation Role\n", types.ColIdentifier},
		{"no role", "ORCID ID,Given Names\n", types.ColRelationRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.header))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, strings.Join(types.Columns, ","), header)

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), got)
}

// --- XLSX ---

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows()))

	got, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), got)
}

func TestWriteXLSX_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows()))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())
	header, err := f.GetCellValue(sheetName, "G1")
	require.NoError(t, err)
	assert.Equal(t, types.ColStartYear, header)
	start, err := f.GetCellValue(sheetName, "G2")
	require.NoError(t, err)
	assert.Equal(t, "2015", start)
	end, err := f.GetCellValue(sheetName, "H3")
	require.NoError(t, err)
	assert.Empty(t, end, "an open affiliation has a blank end year cell")
}

func TestReadXLSX_FirstSheetOnly(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	first := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(first, "A1", &[]any{"ORCID ID", "Org Affiliation Relation Role", "Start Year"}))
	require.NoError(t, f.SetSheetRow(first, "A2", &[]any{"0000-0001-0000-0001", "EMPLOYMENT", 2012}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]any{"unrelated"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadXLSX(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2012, *rows[0].StartYear)
}

// --- files ---

func TestSaveLoad(t *testing.T) {
	for _, name := range []string{"out.csv", "out.xlsx", "OUT.XLSX"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, sampleRows()))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, sampleRows(), got)
		})
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := Load(path)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

// --- helpers ---

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{"2015", types.IntPtr(2015)},
		{" 2015 ", types.IntPtr(2015)},
		{"2015.0", types.IntPtr(2015)},
		{"2015.5", nil},
		{"", nil},
		{"n/a", nil},
		{"NaN", nil},
		{"1e20", nil},
		{"-1e20", nil},
		{"99999999999", nil},
		{"3e9", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseYear(tt.in))
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "0000-0001-2345-6789", NormalizeIdentifier("https://orcid.org/0000-0001-2345-6789"))
	assert.Equal(t, "0000-0001-2345-6789", NormalizeIdentifier("HTTP://ORCID.ORG/0000-0001-2345-6789"))
	assert.Equal(t, "0000-0001-2345-6789", NormalizeIdentifier(" 0000-0001-2345-6789 "))
	assert.Equal(t, "", NormalizeIdentifier(""))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2020-01-01", "2020-01-01T00:00:00Z", "2020-01-01 00:00:00"} {
		got := parseTime(s)
		require.NotNil(t, got, s)
		assert.True(t, want.Equal(*got), s)
	}
	assert.Nil(t, parseTime("sometime"))
}

func TestValidate(t *testing.T) {
	rows := []types.AffiliationRecord{
		{Identifier: "0000-0001-2345-6789", StartYear: types.IntPtr(2020), EndYear: types.IntPtr(2023)},
		{Identifier: "0000-0001-2345-678X", StartYear: types.IntPtr(2030)},
		{Identifier: "bogus", StartYear: types.IntPtr(2020), EndYear: types.IntPtr(2019)},
	}
	issues := Validate(rows, 2026)
	require.Len(t, issues, 3)
	assert.Equal(t, 2, issues[0].Row)
	assert.Contains(t, issues[0].Problem, "future")
	assert.Equal(t, 3, issues[1].Row)
	assert.Contains(t, issues[1].Problem, "identifier")
	assert.Contains(t, issues[2].Problem, "before start year")
	assert.Contains(t, issues[2].String(), "row 3 (bogus)")
}
