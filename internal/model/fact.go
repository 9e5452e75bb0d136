package model

import (
	"strings"
	"time"
)

// Provenance records where a fact came from.
type Provenance string

const (
	ProvenanceDisclosed Provenance = "disclosed" // submitted by the organization
	ProvenanceComputed  Provenance = "computed"  // written by the derivation engine
)

// Valid reports whether p is a known provenance.
func (p Provenance) Valid() bool {
	return p == ProvenanceDisclosed || p == ProvenanceComputed
}

// Fact is one version of a raw metric for (organization, period, field).
// Superseded versions keep IsCurrent=false and are never deleted.
type Fact struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Period         Period     `json:"reporting_period"`
	FieldName      string     `json:"form_field"`
	Value          Value      `json:"field_value"`
	Provenance     Provenance `json:"provenance"`
	IsKPI          bool       `json:"is_kpi"`
	IsCurrent      bool       `json:"is_current"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FactKey identifies the version chain a fact belongs to.
type FactKey struct {
	OrganizationID int64
	Period         Period
	FieldName      string
}

// Key returns the version chain key of f.
func (f Fact) Key() FactKey {
	return FactKey{OrganizationID: f.OrganizationID, Period: f.Period, FieldName: f.FieldName}
}

// FactInput is a new fact version to be written through the fact store.
type FactInput struct {
	OrganizationID int64      `json:"organization_id"`
	Period         Period     `json:"reporting_period"`
	FieldName      string     `json:"form_field"`
	Value          Value      `json:"field_value"`
	Provenance     Provenance `json:"provenance,omitempty"`
	IsKPI          bool       `json:"is_kpi"`
}

// FactFilter narrows a current-facts read. Zero fields do not filter.
type FactFilter struct {
	FieldName  string     `json:"form_field,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
	IsKPI      *bool      `json:"is_kpi,omitempty"`
}

// Match reports whether f passes the filter.
func (ff FactFilter) Match(f Fact) bool {
	if ff.FieldName != "" && f.FieldName != ff.FieldName {
		return false
	}
	if ff.Provenance != "" && f.Provenance != ff.Provenance {
		return false
	}
	if ff.IsKPI != nil && f.IsKPI != *ff.IsKPI {
		return false
	}
	return true
}

// Bool returns a pointer to b, for FactFilter.IsKPI.
func Bool(b bool) *bool { return &b }

// ValidateFact normalizes in and enforces the ingestion policy:
// a known organization, period, and field; a known provenance (empty means
// disclosed); and no negative numeric values. Non-numeric values are
// accepted as-is.
func ValidateFact(in FactInput) (FactInput, error) {
	in.FieldName = strings.TrimSpace(in.FieldName)
	if in.OrganizationID <= 0 {
		return in, NewValidationError("organization_id", "must be positive, got %d", in.OrganizationID)
	}
	if in.FieldName == "" {
		return in, NewValidationError("form_field", "is required")
	}
	if in.Period.IsZero() {
		return in, NewValidationError("reporting_period", "is required")
	}
	p, err := ParsePeriod(string(in.Period))
	if err != nil {
		return in, NewValidationError("reporting_period", "invalid period %q", in.Period)
	}
	in.Period = p

	if in.Provenance == "" {
		in.Provenance = ProvenanceDisclosed
	}
	if !in.Provenance.Valid() {
		return in, NewValidationError("provenance", "unknown provenance %q", in.Provenance)
	}

	if f, ok := in.Value.Float(); ok && f < 0 {
		return in, NewValidationError(in.FieldName, "negative values are not allowed (got %v)", f)
	}
	return in, nil
}

// ValidateSubmission is ValidateFact for values arriving from outside the
// derivation engine. Computed rows are written by derivation only.
func ValidateSubmission(in FactInput) (FactInput, error) {
	in, err := ValidateFact(in)
	if err != nil {
		return in, err
	}
	if in.Provenance == ProvenanceComputed {
		return in, NewValidationError("provenance", "computed values are written by derivation only")
	}
	return in, nil
}
