package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-scorecard/internal/model"
)

type fakeSource struct {
	mappings []model.FieldMapping
	err      error
	filter   model.MappingFilter
}

func (f *fakeSource) ListMappings(_ context.Context, filter model.MappingFilter) ([]model.FieldMapping, error) {
	f.filter = filter
	return f.mappings, f.err
}

func current(id int64, field, period, kpi string, method model.AggregationMethod) model.FieldMapping {
	return model.FieldMapping{
		ID: id, FormField: field, Period: model.Period(period), KPICode: kpi,
		AggregationMethod: method, IsCurrent: true,
	}
}

func TestResolve_PeriodFallback(t *testing.T) {
	src := &fakeSource{mappings: []model.FieldMapping{
		// exact period wins over everything
		current(1, "petrol_consumption", "", "scope1_emissions", model.AggregateSum),
		current(2, "petrol_consumption", "2023-01-01", "scope1_emissions", model.AggregateAvg),
		current(3, "petrol_consumption", "2024-01-01", "scope1_emissions", model.AggregateLatest),
		// latest earlier period wins over global
		current(4, "electricity_consumption", "", "scope2_emissions", model.AggregateSum),
		current(5, "electricity_consumption", "2022-01-01", "scope2_emissions", model.AggregateFirst),
		current(6, "electricity_consumption", "2023-01-01", "scope2_emissions", model.AggregateAvg),
		// later periods never apply
		current(7, "water_recycled", "", "water_recycling_ratio", model.AggregateSum),
		current(8, "water_recycled", "2025-01-01", "water_recycling_ratio", model.AggregateLatest),
		// future-only mapping means no mapping
		current(9, "board_size", "2025-01-01", "board_independence", model.AggregateSum),
	}}

	got, err := NewResolver(src).Resolve(context.Background(), model.MustPeriod("2024-01-01"))
	require.NoError(t, err)
	assert.True(t, src.filter.CurrentOnly)

	assert.Equal(t, model.AggregateLatest, got["petrol_consumption"].AggregationMethod)
	assert.Equal(t, model.MustPeriod("2024-01-01"), got["petrol_consumption"].Period)
	assert.Equal(t, model.AggregateAvg, got["electricity_consumption"].AggregationMethod)
	assert.Equal(t, model.AggregateSum, got["water_recycled"].AggregationMethod)
	assert.True(t, got["water_recycled"].Period.IsZero())
	assert.NotContains(t, got, "board_size")
}

func TestSelect_SkipsNonCurrentAndUnmapped(t *testing.T) {
	retired := current(1, "diesel_consumption", "2024-01-01", "scope1_emissions", model.AggregateSum)
	retired.IsCurrent = false

	got := Select([]model.FieldMapping{
		retired,
		current(2, "diesel_consumption", "", "scope1_emissions", model.AggregateAvg),
		// an exact-period mapping with no KPI hides the global one
		current(3, "comments", "", "governance_notes", model.AggregateFirst),
		current(4, "comments", "2024-01-01", "", model.AggregateFirst),
	}, model.MustPeriod("2024-01-01"))

	assert.Equal(t, model.AggregateAvg, got["diesel_consumption"].AggregationMethod)
	assert.NotContains(t, got, "comments")
}

func TestSelect_UnknownMethodFallsBackToFirst(t *testing.T) {
	got := Select([]model.FieldMapping{
		current(1, "esg_policy", "", "policy_disclosed", "MEDIAN"),
		current(2, "headcount", "", "employees", ""),
	}, model.MustPeriod("2024-01-01"))

	assert.Equal(t, model.AggregateFirst, got["esg_policy"].AggregationMethod)
	assert.Equal(t, model.AggregateSum, got["headcount"].AggregationMethod)
}

func TestSelect_DuplicateCurrentPrefersNewest(t *testing.T) {
	got := Select([]model.FieldMapping{
		current(5, "petrol_consumption", "", "scope1_emissions", model.AggregateAvg),
		current(9, "petrol_consumption", "", "scope1_emissions", model.AggregateLatest),
	}, model.MustPeriod("2024-01-01"))

	assert.Equal(t, model.AggregateLatest, got["petrol_consumption"].AggregationMethod)
}

func TestResolve_SourceError(t *testing.T) {
	_, err := NewResolver(&fakeSource{err: errors.New("db down")}).Resolve(context.Background(), "2024-01-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping: list current mappings")
}

func TestGroup(t *testing.T) {
	groups := Group(map[string]Mapping{
		"petrol_consumption": {KPICode: "scope1_emissions"},
		"diesel_consumption": {KPICode: "scope1_emissions"},
		"electricity":        {KPICode: "scope2_emissions"},
	})
	assert.Equal(t, []string{"diesel_consumption", "petrol_consumption"}, groups["scope1_emissions"])
	assert.Equal(t, []string{"electricity"}, groups["scope2_emissions"])
}
