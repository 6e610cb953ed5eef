// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

func TestNormalizeDomains(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []string
		wantErr error
	}{
		{"single", []string{"example.edu"}, []string{"example.edu"}, nil},
		{"trim and lower", []string{"  Example.EDU "}, []string{"example.edu"}, nil},
		{"strip at sign", []string{"@ox.ac.uk"}, []string{"ox.ac.uk"}, nil},
		{"dedupe keeps order", []string{"b.org", "a.org", "B.org"}, []string{"b.org", "a.org"}, nil},
		{"blank entries skipped", []string{"", " ", "jisc.ac.uk"}, []string{"jisc.ac.uk"}, nil},
		{"empty list", nil, nil, ErrNoDomains},
		{"only blanks", []string{"", "  "}, nil, ErrNoDomains},
		{"query injection", []string{"example.edu OR *"}, nil, ErrInvalidDomain},
		{"no dot", []string{"localhost"}, nil, ErrInvalidDomain},
		{"wildcard", []string{"*.edu"}, nil, ErrInvalidDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDomains(tt.input)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDomainQuery(t *testing.T) {
	tests := []struct {
		name    string
		domains []string
		want    string
	}{
		{"one domain", []string{"example.edu"}, "email:*@example.edu"},
		{"two domains", []string{"jisc.ac.uk", "ox.ac.uk"}, "email:*@jisc.ac.uk OR email:*@ox.ac.uk"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDomainQuery(tt.domains))
		})
	}
}

func TestDecodeExpandedSearch(t *testing.T) {
	body := `{
	  "expanded-result": [
	    {"orcid-id": "0000-0001-0000-0001", "given-names": "A", "email": ["a@example.edu"]},
	    {"orcid-id": ""},
	    {"orcid-id": " 0000-0001-0000-0002 "}
	  ],
	  "num-found": 12
	}`
	page, err := decodeSearchPage(types.ModeExpanded, strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 12, page.NumFound)
	assert.Equal(t, []string{"0000-0001-0000-0001", "0000-0001-0000-0002"}, page.Identifiers)
}

func TestDecodeExpandedSearch_NullResults(t *testing.T) {
	page, err := decodeSearchPage(types.ModeExpanded, strings.NewReader(`{"expanded-result": null, "num-found": 0}`))
	require.NoError(t, err)
	assert.Zero(t, page.NumFound)
	assert.Empty(t, page.Identifiers)
}

func TestDecodeExpandedSearch_Malformed(t *testing.T) {
	_, err := decodeSearchPage(types.ModeExpanded, strings.NewReader(`<html>oops</html>`))
	assert.Error(t, err)
}

const sampleSearchXML = `<?xml version="1.0" encoding="UTF-8"?>
<search:search num-found="2" xmlns:search="http://www.orcid.org/ns/search" xmlns:common="http://www.orcid.org/ns/common">
  <search:result>
    <common:orcid-identifier>
      <common:uri>https://orcid.org/0000-0001-0000-0001</common:uri>
      <common:path>0000-0001-0000-0001</common:path>
      <common:host>orcid.org</common:host>
    </common:orcid-identifier>
  </search:result>
  <search:result>
    <common:orcid-identifier>
      <common:path>0000-0001-0000-0002</common:path>
    </common:orcid-identifier>
  </search:result>
</search:search>`

func TestDecodeXMLSearch(t *testing.T) {
	page, err := decodeSearchPage(types.ModeSearch, strings.NewReader(sampleSearchXML))
	require.NoError(t, err)
	assert.Equal(t, 2, page.NumFound)
	assert.Equal(t, []string{"0000-0001-0000-0001", "0000-0001-0000-0002"}, page.Identifiers)
}

func TestDecodeXMLSearch_MissingNamespaceFailsWholeDocument(t *testing.T) {
	body := `<search num-found="1"><result><orcid-identifier><path>0000-0001</path></orcid-identifier></result></search>`
	_, err := decodeSearchPage(types.ModeSearch, strings.NewReader(body))
	assert.Error(t, err)
}

func TestDecodeXMLSearch_ChildNamespaceMissingFails(t *testing.T) {
	body := `<search:search num-found="1" xmlns:search="http://www.orcid.org/ns/search">
	  <search:result><orcid-identifier><path>0000-0001</path></orcid-identifier></search:result>
	</search:search>`
	_, err := decodeSearchPage(types.ModeSearch, strings.NewReader(body))
	assert.Error(t, err)
}
