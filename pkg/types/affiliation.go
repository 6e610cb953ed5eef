// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data contract for the affiliation pipeline:
// the flat affiliation row produced by the registry parser and the spreadsheet
// loader, the search telemetry returned alongside it, and stage configuration.
//
// See docs/ARCHITECTURE § Data Contract.
package types

import "time"

// Provenance tags written to AffiliationRecord.Source.
const (
	SourceFileUpload = "File Upload"
	SourceRegistry   = "ORCID API"
)

// RoleEmployment is the relation role the registry parser assigns to every
// employment summary.
const RoleEmployment = "EMPLOYMENT"

// AffiliationRecord is one employment relationship for one identified
// researcher. Optional fields are nil when the upstream value is missing.
type AffiliationRecord struct {
	// Identifier is the researcher's public registry identifier (ORCID iD).
	Identifier string `json:"identifier" yaml:"identifier"`

	GivenNames *string `json:"given_names,omitempty" yaml:"given_names,omitempty"`
	FamilyName *string `json:"family_name,omitempty" yaml:"family_name,omitempty"`

	// RelationRole is a categorical tag such as "EMPLOYMENT".
	RelationRole string `json:"relation_role" yaml:"relation_role"`

	// RelationTitle is the free-text position title.
	RelationTitle *string `json:"relation_title,omitempty" yaml:"relation_title,omitempty"`
	Department    *string `json:"department,omitempty" yaml:"department,omitempty"`

	StartYear *int `json:"start_year,omitempty" yaml:"start_year,omitempty"`
	// EndYear is nil for an ongoing affiliation.
	EndYear *int `json:"end_year,omitempty" yaml:"end_year,omitempty"`
	// Duration is EndYear - StartYear. Always derived, see ComputeDuration.
	Duration *int `json:"duration,omitempty" yaml:"duration,omitempty"`

	CreatedAt  *time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`

	// Source is the provenance tag (SourceFileUpload, SourceRegistry, ...).
	Source string `json:"source" yaml:"source"`

	IdentifierType   *string `json:"identifier_type,omitempty" yaml:"identifier_type,omitempty"`
	IdentifierValue  *string `json:"identifier_value,omitempty" yaml:"identifier_value,omitempty"`
	EmailAddresses   *string `json:"email_addresses,omitempty" yaml:"email_addresses,omitempty"`
	OrganizationName *string `json:"organization_name,omitempty" yaml:"organization_name,omitempty"`
}

// ComputeDuration returns end - start when both years are present, nil otherwise.
func ComputeDuration(start, end *int) *int {
	if start == nil || end == nil {
		return nil
	}
	d := *end - *start
	return &d
}

// Active reports whether the affiliation has no end year.
func (r AffiliationRecord) Active() bool {
	return r.EndYear == nil
}

// Canonical column headers. Spreadsheet exports use these names, and the
// CSV/XLSX writers emit columns in this order.
const (
	ColIdentifier       = "ORCID ID"
	ColGivenNames       = "Given Names"
	ColFamilyName       = "Family Name"
	ColRelationRole     = "Org Affiliation Relation Role"
	ColRelationTitle    = "Org Affiliation Relation Title"
	ColDepartment       = "Department"
	ColStartYear        = "Start Year"
	ColEndYear          = "End Year"
	ColDuration         = "Duration"
	ColCreatedAt        = "Date Created"
	ColModifiedAt       = "Last Modified"
	ColSource           = "Source"
	ColIdentifierType   = "Identifier Type"
	ColIdentifierValue  = "Identifier Value"
	ColEmailAddresses   = "Email Addresses"
	ColOrganizationName = "Organization Name"
)

// Columns lists the fixed column set of an affiliation table.
var Columns = []string{
	ColIdentifier,
	ColGivenNames,
	ColFamilyName,
	ColRelationRole,
	ColRelationTitle,
	ColDepartment,
	ColStartYear,
	ColEndYear,
	ColDuration,
	ColCreatedAt,
	ColModifiedAt,
	ColSource,
	ColIdentifierType,
	ColIdentifierValue,
	ColEmailAddresses,
	ColOrganizationName,
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Clone returns a copy of r that shares no pointers with it.
func (r AffiliationRecord) Clone() AffiliationRecord {
	c := r
	c.GivenNames = cloneString(r.GivenNames)
	c.FamilyName = cloneString(r.FamilyName)
	c.RelationTitle = cloneString(r.RelationTitle)
	c.Department = cloneString(r.Department)
	c.StartYear = cloneInt(r.StartYear)
	c.EndYear = cloneInt(r.EndYear)
	c.Duration = cloneInt(r.Duration)
	c.IdentifierType = cloneString(r.IdentifierType)
	c.IdentifierValue = cloneString(r.IdentifierValue)
	c.EmailAddresses = cloneString(r.EmailAddresses)
	c.OrganizationName = cloneString(r.OrganizationName)
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		c.CreatedAt = &t
	}
	if r.ModifiedAt != nil {
		t := *r.ModifiedAt
		c.ModifiedAt = &t
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
