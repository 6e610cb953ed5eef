// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// XML namespaces used by the registry's search endpoint.
const (
	nsSearch = "http://www.orcid.org/ns/search"
	nsCommon = "http://www.orcid.org/ns/common"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// NormalizeDomains trims, lowercases, strips a leading "@", and deduplicates
// the requested domains, keeping input order. It fails on an empty set or a
// value that is not a host name.
func NormalizeDomains(domains []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		d = strings.TrimPrefix(d, "@")
		if d == "" || seen[d] {
			continue
		}
		if !domainPattern.MatchString(d) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDomain, d)
		}
		seen[d] = true
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, ErrNoDomains
	}
	return out, nil
}

// BuildDomainQuery returns a disjunctive query matching e-mail addresses
// that end with "@domain" for any of the given domains.
func BuildDomainQuery(domains []string) string {
	parts := make([]string, len(domains))
	for i, d := range domains {
		parts[i] = "email:*@" + d
	}
	return strings.Join(parts, " OR ")
}

// searchPage is one page of search hits.
type searchPage struct {
	NumFound    int
	Identifiers []string
}

// decodeSearchPage parses a search response body for the given mode.
func decodeSearchPage(mode types.SearchMode, r io.Reader) (searchPage, error) {
	switch mode {
	case types.ModeSearch:
		return decodeXMLSearch(r)
	default:
		return decodeExpandedSearch(r)
	}
}

type expandedSearchResponse struct {
	NumFound int                   `json:"num-found"`
	Results  []expandedSearchEntry `json:"expanded-result"`
}

type expandedSearchEntry struct {
	OrcidID    string   `json:"orcid-id"`
	GivenNames string   `json:"given-names"`
	FamilyName string   `json:"family-names"`
	Emails     []string `json:"email"`
}

func decodeExpandedSearch(r io.Reader) (searchPage, error) {
	var resp expandedSearchResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return searchPage{}, fmt.Errorf("parsing expanded-search response: %w", err)
	}
	page := searchPage{NumFound: resp.NumFound}
	for _, e := range resp.Results {
		if id := strings.TrimSpace(e.OrcidID); id != "" {
			page.Identifiers = append(page.Identifiers, id)
		}
	}
	return page, nil
}

// xmlSearchResponse is the namespace-qualified search document. A root
// element outside the search namespace fails decoding as a whole.
type xmlSearchResponse struct {
	XMLName  xml.Name          `xml:"http://www.orcid.org/ns/search search"`
	NumFound int               `xml:"num-found,attr"`
	Results  []xmlSearchResult `xml:"http://www.orcid.org/ns/search result"`
}

type xmlSearchResult struct {
	Identifier xmlOrcidIdentifier `xml:"http://www.orcid.org/ns/common orcid-identifier"`
}

type xmlOrcidIdentifier struct {
	URI  string `xml:"http://www.orcid.org/ns/common uri"`
	Path string `xml:"http://www.orcid.org/ns/common path"`
}

func decodeXMLSearch(r io.Reader) (searchPage, error) {
	var resp xmlSearchResponse
	if err := xml.NewDecoder(r).Decode(&resp); err != nil {
		return searchPage{}, fmt.Errorf("parsing search response: %w", err)
	}
	page := searchPage{NumFound: resp.NumFound}
	for i, res := range resp.Results {
		id := strings.TrimSpace(res.Identifier.Path)
		if id == "" {
			return searchPage{}, fmt.Errorf("search result %d has no namespace-qualified identifier path", i)
		}
		page.Identifiers = append(page.Identifiers, id)
	}
	return page, nil
}
