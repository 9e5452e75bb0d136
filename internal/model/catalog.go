package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Pillar is one of the three top-level ESG groupings.
type Pillar string

const (
	PillarEnvironmental Pillar = "Environmental"
	PillarSocial        Pillar = "Social"
	PillarGovernance    Pillar = "Governance"
)

// Pillars lists every pillar in reporting order.
func Pillars() []Pillar {
	return []Pillar{PillarEnvironmental, PillarSocial, PillarGovernance}
}

// ParsePillar canonicalizes s ("environmental", " SOCIAL ") to a Pillar.
func ParsePillar(s string) (Pillar, bool) {
	// Casers are stateful; one per call keeps this safe for concurrent use.
	p := Pillar(cases.Title(language.English).String(strings.TrimSpace(s)))
	switch p {
	case PillarEnvironmental, PillarSocial, PillarGovernance:
		return p, true
	}
	return "", false
}

// AggregationMethod selects how several submissions for one KPI combine.
type AggregationMethod string

const (
	AggregateSum    AggregationMethod = "SUM"
	AggregateAvg    AggregationMethod = "AVG"
	AggregateLatest AggregationMethod = "LATEST"
	AggregateFirst  AggregationMethod = "FIRST"
)

// ParseAggregationMethod maps s to a method. An empty string is SUM, the
// stored default. Any other unrecognized string is FIRST, and ok is false so
// callers can report it.
func ParseAggregationMethod(s string) (m AggregationMethod, ok bool) {
	switch AggregationMethod(strings.ToUpper(strings.TrimSpace(s))) {
	case "", AggregateSum:
		return AggregateSum, true
	case AggregateAvg:
		return AggregateAvg, true
	case AggregateLatest:
		return AggregateLatest, true
	case AggregateFirst:
		return AggregateFirst, true
	}
	return AggregateFirst, false
}

// NormalizationMethod selects how an aggregated KPI value maps onto [0,100].
type NormalizationMethod string

const (
	NormalizeAbsolute   NormalizationMethod = "absolute"
	NormalizePercentage NormalizationMethod = "percentage"
	NormalizeBoolean    NormalizationMethod = "boolean"
	NormalizeInverse    NormalizationMethod = "inverse"
	NormalizeIndex      NormalizationMethod = "index"
)

// ParseNormalizationMethod maps s to a method. An empty string is absolute.
// Any other unrecognized string is index, and ok is false.
func ParseNormalizationMethod(s string) (m NormalizationMethod, ok bool) {
	switch NormalizationMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", NormalizeAbsolute:
		return NormalizeAbsolute, true
	case NormalizePercentage:
		return NormalizePercentage, true
	case NormalizeBoolean:
		return NormalizeBoolean, true
	case NormalizeInverse:
		return NormalizeInverse, true
	case NormalizeIndex:
		return NormalizeIndex, true
	}
	return NormalizeIndex, false
}

// KPIStatus marks whether a KPI takes part in scoring.
type KPIStatus string

const (
	KPIStatusActive   KPIStatus = "active"
	KPIStatusInactive KPIStatus = "inactive"
)

// KPIDefinition is the canonical description of a KPI.
type KPIDefinition struct {
	Code                string              `json:"kpi_code" yaml:"kpi_code"`
	Description         string              `json:"kpi_description" yaml:"description"`
	Pillar              Pillar              `json:"pillar" yaml:"pillar"`
	Unit                string              `json:"unit,omitempty" yaml:"unit"`
	NormalizationMethod NormalizationMethod `json:"normalization_method" yaml:"normalization_method"`
	FrameworkReference  string              `json:"framework_reference,omitempty" yaml:"framework_reference"`
	Status              KPIStatus           `json:"status" yaml:"status"`
}

// Active reports whether the KPI takes part in aggregation. An empty status
// is active.
func (k KPIDefinition) Active() bool {
	return k.Status == "" || k.Status == KPIStatusActive
}

// FieldMapping maps a form field to a KPI for a reporting period. An empty
// Period applies to every period; an empty KPICode maps the field to no KPI.
type FieldMapping struct {
	ID                int64             `json:"id"`
	FormField         string            `json:"form_field"`
	Period            Period            `json:"reporting_period,omitempty"`
	KPICode           string            `json:"kpi_code,omitempty"`
	AggregationMethod AggregationMethod `json:"aggregation_method"`
	IsCurrent         bool              `json:"is_current"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// KPIWeight is an organization's weight for one KPI in a period, on a
// 0-100 scale.
type KPIWeight struct {
	OrganizationID int64     `json:"organization_id"`
	Period         Period    `json:"reporting_period"`
	KPICode        string    `json:"kpi_code"`
	Weight         float64   `json:"weight"`
	IsCurrent      bool      `json:"is_current"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PillarWeight is an organization's weight for one pillar in a period.
type PillarWeight struct {
	OrganizationID int64     `json:"organization_id"`
	Period         Period    `json:"reporting_period"`
	Pillar         Pillar    `json:"pillar"`
	Weight         float64   `json:"pillar_weight"`
	IsCurrent      bool      `json:"is_current"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// WeightFilter narrows a weight read. A zero Period matches every period.
type WeightFilter struct {
	OrganizationID int64
	Period         Period
	CurrentOnly    bool
}

// MappingFilter narrows a mapping read. A zero Period matches every period.
type MappingFilter struct {
	FormField   string
	Period      Period
	CurrentOnly bool
}
