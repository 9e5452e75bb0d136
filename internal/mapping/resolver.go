// Package mapping resolves raw form fields to KPI codes for a reporting
// period.
//
// For each form field the resolver picks the first current mapping from:
// the run period itself, then the latest earlier period, then the
// period-less (global) mapping. Mappings for later periods never apply.
package mapping

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// Source is the catalog read the resolver needs.
type Source interface {
	ListMappings(ctx context.Context, filter model.MappingFilter) ([]model.FieldMapping, error)
}

// Mapping is the resolved target of a form field.
type Mapping struct {
	KPICode           string                  `json:"kpi_code"`
	AggregationMethod model.AggregationMethod `json:"aggregation_method"`
	// Period is the mapping's own period; empty for a global mapping.
	Period model.Period `json:"reporting_period,omitempty"`
}

// Resolver resolves mappings against a Source.
type Resolver struct {
	src Source
}

// NewResolver returns a Resolver reading from src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the mapping for every form field that maps to a KPI in
// period. Fields whose winning mapping has no KPI code are omitted.
func (r *Resolver) Resolve(ctx context.Context, period model.Period) (map[string]Mapping, error) {
	all, err := r.src.ListMappings(ctx, model.MappingFilter{CurrentOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "mapping: list current mappings")
	}
	return Select(all, period), nil
}

// Select applies the period fallback to an already-loaded set of mappings.
// Non-current mappings are ignored.
func Select(mappings []model.FieldMapping, period model.Period) map[string]Mapping {
	best := make(map[string]model.FieldMapping)
	for _, m := range mappings {
		if !m.IsCurrent || m.FormField == "" {
			continue
		}
		if !m.Period.IsZero() && period.Before(m.Period) {
			continue
		}
		cur, ok := best[m.FormField]
		if !ok || outranks(m, cur) {
			best[m.FormField] = m
		}
	}

	out := make(map[string]Mapping, len(best))
	for field, m := range best {
		if m.KPICode == "" {
			continue
		}
		method, _ := model.ParseAggregationMethod(string(m.AggregationMethod))
		out[field] = Mapping{KPICode: m.KPICode, AggregationMethod: method, Period: m.Period}
	}
	return out
}

// outranks reports whether a beats b for the same field. Dated mappings
// beat global ones, later dates beat earlier ones, and higher IDs break
// ties left by duplicate current rows.
func outranks(a, b model.FieldMapping) bool {
	switch {
	case a.Period.IsZero() != b.Period.IsZero():
		return !a.Period.IsZero()
	case a.Period != b.Period:
		return b.Period.Before(a.Period)
	}
	return a.ID > b.ID
}

// Group collects form fields by target KPI. Each KPI's fields are sorted,
// so the first field is the lexicographically smallest one.
func Group(resolved map[string]Mapping) map[string][]string {
	groups := make(map[string][]string)
	for field, m := range resolved {
		groups[m.KPICode] = append(groups[m.KPICode], field)
	}
	for _, fields := range groups {
		sort.Strings(fields)
	}
	return groups
}
