// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

const sampleRecordJSON = `{
  "orcid-identifier": {"path": "0000-0001-2345-6789"},
  "person": {
    "name": {
      "given-names": {"value": "Ada"},
      "family-name": {"value": "Lovelace"}
    },
    "emails": {
      "email": [
        {"email": "ada@example.edu", "visibility": "public"},
        {"email": "secret@example.edu", "visibility": "private"},
        {"email": "limited@example.edu", "visibility": "limited"},
        {"email": "ada@other.org", "visibility": "PUBLIC"}
      ]
    }
  },
  "activities-summary": {
    "employments": {
      "employment-summary": [
        {
          "role-title": "Professor",
          "department-name": "Computer Science",
          "start-date": {"year": {"value": "2015"}},
          "end-date": {"year": {"value": "2020"}},
          "created-date": {"value": 1487783000000},
          "last-modified-date": {"value": 1600000000000},
          "organization": {
            "name": "Example University",
            "disambiguated-organization": {
              "disambiguation-source": "ROR",
              "disambiguated-organization-identifier": "https://ror.org/012345678"
            }
          }
        },
        {
          "role-title": "Lecturer",
          "department-name": "",
          "start-date": {"year": {"value": 2021}},
          "end-date": null,
          "organization": {"name": "Other Institute"}
        }
      ]
    }
  }
}`

func TestParseRecord(t *testing.T) {
	res, err := ParseRecord("0000-0001-2345-6789", []byte(sampleRecordJSON))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, []string{"ada@example.edu", "ada@other.org"}, res.Emails)

	first := res.Rows[0]
	assert.Equal(t, "0000-0001-2345-6789", first.Identifier)
	assert.Equal(t, "Ada", types.Deref(first.GivenNames))
	assert.Equal(t, "Lovelace", types.Deref(first.FamilyName))
	assert.Equal(t, types.RoleEmployment, first.RelationRole)
	assert.Equal(t, "Professor", types.Deref(first.RelationTitle))
	assert.Equal(t, "Computer Science", types.Deref(first.Department))
	require.NotNil(t, first.StartYear)
	require.NotNil(t, first.EndYear)
	require.NotNil(t, first.Duration)
	assert.Equal(t, 2015, *first.StartYear)
	assert.Equal(t, 2020, *first.EndYear)
	assert.Equal(t, 5, *first.Duration)
	assert.Equal(t, types.SourceRegistry, first.Source)
	assert.Equal(t, "ROR", types.Deref(first.IdentifierType))
	assert.Equal(t, "https://ror.org/012345678", types.Deref(first.IdentifierValue))
	assert.Equal(t, "Example University", types.Deref(first.OrganizationName))
	assert.Equal(t, "ada@example.edu, ada@other.org", types.Deref(first.EmailAddresses))
	require.NotNil(t, first.CreatedAt)
	assert.Equal(t, time.UnixMilli(1487783000000).UTC(), *first.CreatedAt)
	require.NotNil(t, first.ModifiedAt)

	second := res.Rows[1]
	assert.Equal(t, "Lecturer", types.Deref(second.RelationTitle))
	assert.Nil(t, second.Department, "empty department should be absent")
	require.NotNil(t, second.StartYear)
	assert.Equal(t, 2021, *second.StartYear)
	assert.Nil(t, second.EndYear)
	assert.Nil(t, second.Duration)
	assert.True(t, second.Active())
	assert.Nil(t, second.IdentifierType)
}

func TestParseRecord_NeverSurfacesPrivateEmails(t *testing.T) {
	res, err := ParseRecord("X", []byte(sampleRecordJSON))
	require.NoError(t, err)

	assert.NotContains(t, res.Emails, "secret@example.edu")
	assert.NotContains(t, res.Emails, "limited@example.edu")
	for _, row := range res.Rows {
		assert.NotContains(t, types.Deref(row.EmailAddresses), "secret@")
		assert.NotContains(t, types.Deref(row.EmailAddresses), "limited@")
	}
}

func TestParseRecord_AffiliationGroups(t *testing.T) {
	doc := `{
	  "person": {"name": {"given-names": {"value": "Grace"}}},
	  "activities-summary": {
	    "employments": {
	      "affiliation-group": [
	        {"summaries": [
	          {"employment-summary": {
	            "role-title": "Researcher",
	            "start-date": {"year": {"value": "2001"}},
	            "end-date": {"year": {"value": "2004"}}
	          }}
	        ]},
	        {"summaries": [
	          {"employment-summary": {"role-title": "Director", "start-date": {"year": {"value": "2005"}}}},
	          {"employment-summary": null}
	        ]}
	      ]
	    }
	  }
	}`
	res, err := ParseRecord("G1", []byte(doc))
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, "Researcher", types.Deref(res.Rows[0].RelationTitle))
	require.NotNil(t, res.Rows[0].Duration)
	assert.Equal(t, 3, *res.Rows[0].Duration)
	assert.Equal(t, "Director", types.Deref(res.Rows[1].RelationTitle))
	assert.Nil(t, res.Rows[1].Duration)
	assert.Nil(t, res.Rows[1].FamilyName)
	assert.Empty(t, res.Emails)
	assert.Nil(t, res.Rows[0].EmailAddresses)
}

func TestParseRecord_MissingSections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty object", `{}`},
		{"no activities", `{"person": {"name": null}}`},
		{"no employments", `{"activities-summary": {}}`},
		{"null employment list", `{"activities-summary": {"employments": {"employment-summary": null}}}`},
		{"empty employment list", `{"activities-summary": {"employments": {"employment-summary": []}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseRecord("ID", []byte(tt.doc))
			require.NoError(t, err)
			assert.Empty(t, res.Rows)
			assert.NotNil(t, res.Emails)
		})
	}
}

func TestParseRecord_YearCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int
	}{
		{"string year", `"2015"`, types.IntPtr(2015)},
		{"padded string", `" 2015 "`, types.IntPtr(2015)},
		{"number year", `2015`, types.IntPtr(2015)},
		{"integral float", `2015.0`, types.IntPtr(2015)},
		{"fractional float", `2015.5`, nil},
		{"float beyond int64", `1e20`, nil},
		{"negative float beyond int64", `-1e20`, nil},
		{"integer beyond int32", `99999999999`, nil},
		{"string beyond int64", `"1e20"`, nil},
		{"non-numeric", `"unknown"`, nil},
		{"empty string", `""`, nil},
		{"null", `null`, nil},
		{"bool", `true`, nil},
		{"object", `{"v": 1}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fmt.Sprintf(`{"activities-summary": {"employments": {"employment-summary": [
				{"start-date": {"year": {"value": %s}}, "end-date": {"year": {"value": "2020"}}}
			]}}}`, tt.raw)
			res, err := ParseRecord("ID", []byte(doc))
			require.NoError(t, err)
			require.Len(t, res.Rows, 1)

			row := res.Rows[0]
			assert.Equal(t, tt.want, row.StartYear)
			if tt.want == nil {
				assert.Nil(t, row.Duration)
			} else {
				require.NotNil(t, row.Duration)
				assert.Equal(t, 2020-*tt.want, *row.Duration)
			}
		})
	}
}

func TestParseRecord_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid json", `{"person": `},
		{"top-level list", `[1, 2, 3]`},
		{"top-level string", `"record"`},
		{"person is list", `{"person": []}`},
		{"email list is object", `{"person": {"emails": {"email": {"email": "a@b.c"}}}}`},
		{"email entry is string", `{"person": {"emails": {"email": ["a@b.c"]}}}`},
		{"employment list is string", `{"activities-summary": {"employments": {"employment-summary": "none"}}}`},
		{"employment entry is number", `{"activities-summary": {"employments": {"employment-summary": [42]}}}`},
		{"start-date is scalar", `{"activities-summary": {"employments": {"employment-summary": [{"start-date": "2015"}]}}}`},
		{"role-title is object", `{"activities-summary": {"employments": {"employment-summary": [{"role-title": {"value": "x"}}]}}}`},
		{"group summaries is object", `{"activities-summary": {"employments": {"affiliation-group": [{"summaries": {}}]}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord("0000-0002", []byte(tt.doc))
			require.Error(t, err)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, types.StageRecordParsing, se.Stage)
			assert.Equal(t, "0000-0002", se.Identifier)
			assert.Equal(t, types.StageRecordParsing, StageOf(err))
		})
	}
}

func TestParseRecord_RowCountMatchesEmployments(t *testing.T) {
	for n := 0; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d employments", n), func(t *testing.T) {
			var summaries []map[string]any
			for i := 0; i < n; i++ {
				emp := map[string]any{
					"start-date": map[string]any{"year": map[string]any{"value": fmt.Sprint(2000 + i)}},
				}
				// Every other entry is closed.
				if i%2 == 0 {
					emp["end-date"] = map[string]any{"year": map[string]any{"value": fmt.Sprint(2003 + i)}}
				}
				summaries = append(summaries, emp)
			}
			doc := map[string]any{
				"activities-summary": map[string]any{
					"employments": map[string]any{"employment-summary": summaries},
				},
			}
			data, err := json.Marshal(doc)
			require.NoError(t, err)

			res, err := ParseRecord("N", data)
			require.NoError(t, err)
			require.Len(t, res.Rows, n)
			for i, row := range res.Rows {
				assert.Equal(t, types.RoleEmployment, row.RelationRole)
				if i%2 == 0 {
					require.NotNil(t, row.Duration)
					assert.Equal(t, 3, *row.Duration)
				} else {
					assert.Nil(t, row.Duration)
				}
			}
		})
	}
}

func TestParseRecord_EmailOrderAndDedup(t *testing.T) {
	doc := `{"person": {"emails": {"email": [
		{"email": "b@x.edu", "visibility": "public"},
		{"email": "a@x.edu", "visibility": "public"},
		{"email": "b@x.edu", "visibility": "public"},
		{"email": "", "visibility": "public"},
		{"email": "c@x.edu"},
		{"email": "d@x.edu", "visibility": "Public"}
	]}}}`
	res, err := ParseRecord("E", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.edu", "a@x.edu", "d@x.edu"}, res.Emails)
}
