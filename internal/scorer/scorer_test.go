package scorer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/resilience"
	"github.com/sells-group/esg-scorecard/internal/store"
)

var p2024 = model.MustPeriod("2024-01-01")

// memStore is an in-memory Store.
type memStore struct {
	mu            sync.Mutex
	facts         []model.Fact
	mappings      []model.FieldMapping
	kpis          []model.KPIDefinition
	kpiWeights    []model.KPIWeight
	pillarWeights []model.PillarWeight

	replaceCalls int
	replaceErrs  []error
	kpiScores    []model.KPIScore
	final        *model.FinalScore
}

func (m *memStore) CurrentFacts(_ context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error) {
	var out []model.Fact
	for _, f := range m.facts {
		if f.OrganizationID == orgID && f.Period == period && f.IsCurrent && filter.Match(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) ListMappings(_ context.Context, _ model.MappingFilter) ([]model.FieldMapping, error) {
	return m.mappings, nil
}

func (m *memStore) ListKPIs(_ context.Context, _ bool) ([]model.KPIDefinition, error) {
	return m.kpis, nil
}

func (m *memStore) ListKPIWeights(_ context.Context, f model.WeightFilter) ([]model.KPIWeight, error) {
	var out []model.KPIWeight
	for _, w := range m.kpiWeights {
		if w.OrganizationID == f.OrganizationID && (f.Period.IsZero() || w.Period == f.Period) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) ListPillarWeights(_ context.Context, f model.WeightFilter) ([]model.PillarWeight, error) {
	var out []model.PillarWeight
	for _, w := range m.pillarWeights {
		if w.OrganizationID == f.OrganizationID && (f.Period.IsZero() || w.Period == f.Period) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceScores(_ context.Context, _ int64, _ model.Period, kpis []model.KPIScore, final model.FinalScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceCalls++
	if len(m.replaceErrs) > 0 {
		err := m.replaceErrs[0]
		m.replaceErrs = m.replaceErrs[1:]
		if err != nil {
			return err
		}
	}
	m.kpiScores = kpis
	m.final = &final
	return nil
}

func (m *memStore) submit(id int64, field string, v model.Value, updated time.Time) {
	m.facts = append(m.facts, model.Fact{
		ID: id, OrganizationID: 1, Period: p2024, FieldName: field, Value: v,
		Provenance: model.ProvenanceDisclosed, IsCurrent: true, CreatedAt: updated, UpdatedAt: updated,
	})
}

func (m *memStore) mapField(id int64, field, kpi string, method model.AggregationMethod) {
	m.mappings = append(m.mappings, model.FieldMapping{
		ID: id, FormField: field, KPICode: kpi, AggregationMethod: method, IsCurrent: true,
	})
}

func (m *memStore) kpi(code string, pillar model.Pillar, norm model.NormalizationMethod, weight float64) {
	m.kpis = append(m.kpis, model.KPIDefinition{Code: code, Pillar: pillar, NormalizationMethod: norm, Status: model.KPIStatusActive})
	m.kpiWeights = append(m.kpiWeights, model.KPIWeight{OrganizationID: 1, Period: p2024, KPICode: code, Weight: weight, IsCurrent: true})
}

func (m *memStore) pillars(period model.Period, env, soc, gov float64) {
	for p, w := range map[model.Pillar]float64{
		model.PillarEnvironmental: env, model.PillarSocial: soc, model.PillarGovernance: gov,
	} {
		m.pillarWeights = append(m.pillarWeights, model.PillarWeight{OrganizationID: 1, Period: period, Pillar: p, Weight: w, IsCurrent: true})
	}
}

// threePillars sets up one absolute KPI per pillar scoring 70, 80, and 90.
func threePillars() *memStore {
	st := &memStore{}
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	st.submit(1, "env_field", "70", t0)
	st.submit(2, "soc_field", "80", t0)
	st.submit(3, "gov_field", "90", t0)
	st.mapField(1, "env_field", "E1", model.AggregateSum)
	st.mapField(2, "soc_field", "S1", model.AggregateSum)
	st.mapField(3, "gov_field", "G1", model.AggregateSum)
	st.kpi("E1", model.PillarEnvironmental, model.NormalizeAbsolute, 100)
	st.kpi("S1", model.PillarSocial, model.NormalizeAbsolute, 100)
	st.kpi("G1", model.PillarGovernance, model.NormalizeAbsolute, 100)
	return st
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return cfg
}

func gapKinds(gaps []Gap) []GapKind {
	out := make([]GapKind, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, g.Kind)
	}
	return out
}

func TestRun_WeightedFinalScore(t *testing.T) {
	st := threePillars()
	st.pillars(p2024, 50, 30, 20)

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)

	assert.InDelta(t, 70.0, res.PillarScores[model.PillarEnvironmental], 1e-9)
	assert.InDelta(t, 80.0, res.PillarScores[model.PillarSocial], 1e-9)
	assert.InDelta(t, 90.0, res.PillarScores[model.PillarGovernance], 1e-9)
	assert.InDelta(t, 77.0, res.FinalScore, 1e-9)
	assert.True(t, res.Persisted)
	assert.Empty(t, res.Gaps)

	require.NotNil(t, st.final)
	assert.InDelta(t, 77.0, st.final.FinalESGScore, 1e-9)
	assert.Equal(t, res.RunID, st.final.RunID)
	assert.Len(t, res.ConfigHash, 32)
	assert.Len(t, st.kpiScores, 3)
}

func TestRun_NoPillarWeightsUsesMean(t *testing.T) {
	st := threePillars()

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, res.FinalScore, 1e-9)
	assert.Contains(t, gapKinds(res.Gaps), GapNoPillarWeights)
}

func TestRun_PillarWeightFallback(t *testing.T) {
	st := threePillars()
	st.pillars(model.MustPeriod("2022-01-01"), 100, 0, 0)
	st.pillars(model.MustPeriod("2023-01-01"), 50, 30, 20)
	st.pillars(model.MustPeriod("2025-01-01"), 0, 0, 100)

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	assert.InDelta(t, 77.0, res.FinalScore, 1e-9)
	assert.Contains(t, gapKinds(res.Gaps), GapPillarWeightsFallback)

	cfg := testConfig()
	cfg.PillarWeightFallback = false
	res, err = NewScorer(st, cfg).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, res.FinalScore, 1e-9)
}

func TestRun_EmptyInputWritesNothing(t *testing.T) {
	st := &memStore{}
	st.kpi("E1", model.PillarEnvironmental, model.NormalizeAbsolute, 100)

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)

	for _, p := range model.Pillars() {
		assert.Zero(t, res.PillarScores[p])
	}
	assert.Zero(t, res.FinalScore)
	assert.False(t, res.Persisted)
	assert.Zero(t, st.replaceCalls)
}

func TestRun_Aggregation(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		method model.AggregationMethod
		want   float64
	}{
		{"sum", model.AggregateSum, 35},
		{"avg", model.AggregateAvg, 35.0 / 3},
		{"latest", model.AggregateLatest, 5},
		{"first", model.AggregateFirst, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &memStore{}
			st.submit(1, "a_field", "10", t0)
			st.submit(2, "b_field", "20", t0.Add(-time.Hour))
			st.submit(3, "c_field", "5", t0.Add(time.Hour))
			st.mapField(1, "a_field", "E1", tt.method)
			st.mapField(2, "b_field", "E1", model.AggregateSum)
			st.mapField(3, "c_field", "E1", model.AggregateSum)
			st.kpi("E1", model.PillarEnvironmental, model.NormalizeAbsolute, 100)

			res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
			require.NoError(t, err)
			require.Len(t, res.KPIScores, 1)
			got, ok := res.KPIScores[0].RawValue.Float()
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAggregate_IgnoresEmptyValues(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	facts := []model.Fact{
		{ID: 1, Value: "10", UpdatedAt: t0},
		{ID: 2, Value: "", UpdatedAt: t0.Add(time.Hour)},
	}
	assert.Equal(t, model.Value("10"), Aggregate(model.AggregateSum, facts))
	assert.Equal(t, model.Value("10"), Aggregate(model.AggregateLatest, facts))
	assert.Equal(t, model.Value(""), Aggregate(model.AggregateSum, facts[1:]))
}

func TestRun_WithdrawnValueScoresZero(t *testing.T) {
	st := &memStore{}
	st.submit(1, "scope1_emissions", "", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	st.mapField(1, "scope1_emissions", "E1", model.AggregateSum)
	st.kpi("E1", model.PillarEnvironmental, model.NormalizeInverse, 100)

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	require.Len(t, res.KPIScores, 1)
	assert.Equal(t, model.Value(""), res.KPIScores[0].RawValue)
	assert.Zero(t, res.KPIScores[0].NormalizedScore)
	assert.Zero(t, res.PillarScores[model.PillarEnvironmental])
}

func TestRun_WeightedKPIScores(t *testing.T) {
	st := &memStore{}
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	st.submit(1, "emissions", "250", t0)
	st.submit(2, "renewable", "0.4", t0)
	st.mapField(1, "emissions", "E1", model.AggregateSum)
	st.mapField(2, "renewable", "E2", model.AggregateSum)
	st.kpi("E1", model.PillarEnvironmental, model.NormalizeInverse, 60)
	st.kpi("E2", model.PillarEnvironmental, model.NormalizePercentage, 40)

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	require.Len(t, res.KPIScores, 2)

	byCode := map[string]model.KPIScore{}
	for _, k := range res.KPIScores {
		byCode[k.KPICode] = k
	}
	assert.InDelta(t, 75.0, byCode["E1"].NormalizedScore, 1e-9)
	assert.InDelta(t, 45.0, byCode["E1"].WeightedScore, 1e-9)
	assert.InDelta(t, 40.0, byCode["E2"].NormalizedScore, 1e-9)
	assert.InDelta(t, 16.0, byCode["E2"].WeightedScore, 1e-9)
	assert.InDelta(t, (45.0+16.0)/2, res.PillarScores[model.PillarEnvironmental], 1e-9)
	assert.Zero(t, res.PillarScores[model.PillarSocial])
}

func TestRun_Gaps(t *testing.T) {
	st := &memStore{}
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	st.submit(1, "known", "50", t0)
	st.submit(2, "retired", "50", t0)
	st.submit(3, "ghost", "50", t0)
	st.submit(4, "unweighted", "50", t0)
	st.submit(5, "unmapped", "50", t0)
	st.mapField(1, "known", "E1", model.AggregateSum)
	st.mapField(2, "retired", "E2", model.AggregateSum)
	st.mapField(3, "ghost", "E9", model.AggregateSum)
	st.mapField(4, "unweighted", "S1", model.AggregateSum)
	st.kpi("E1", model.PillarEnvironmental, model.NormalizeAbsolute, 100)
	st.kpis = append(st.kpis,
		model.KPIDefinition{Code: "E2", Pillar: model.PillarEnvironmental, Status: model.KPIStatusInactive},
		model.KPIDefinition{Code: "S1", Pillar: model.PillarSocial, Status: model.KPIStatusActive},
	)
	st.pillars(p2024, 50, 30, 20)

	cfg := testConfig()
	cfg.DefaultKPIWeight = 50
	res, err := NewScorer(st, cfg).Run(context.Background(), 1, p2024)
	require.NoError(t, err)

	kinds := gapKinds(res.Gaps)
	assert.Contains(t, kinds, GapInactiveKPI)
	assert.Contains(t, kinds, GapUnknownKPI)
	assert.Contains(t, kinds, GapMissingKPIWeight)
	assert.Contains(t, kinds, GapKPIWeightSum)

	require.Len(t, res.KPIScores, 2)
	assert.InDelta(t, 50.0, res.PillarScores[model.PillarEnvironmental], 1e-9)
	assert.InDelta(t, 25.0, res.PillarScores[model.PillarSocial], 1e-9)
}

func TestRun_NoActiveKPIsPersistsZeros(t *testing.T) {
	st := &memStore{}
	st.submit(1, "known", "50", time.Now())
	st.mapField(1, "known", "E1", model.AggregateSum)

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, 1, st.replaceCalls)
	assert.Zero(t, res.FinalScore)
	assert.Contains(t, gapKinds(res.Gaps), GapNoActiveKPIs)
}

func TestRun_RetriesTransientWrite(t *testing.T) {
	st := threePillars()
	st.replaceErrs = []error{resilience.NewTransientError(errors.New("connection reset"), "08006"), nil}

	res, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, 2, st.replaceCalls)
}

func TestRun_PermanentWriteFailure(t *testing.T) {
	st := threePillars()
	st.replaceErrs = []error{errors.New("constraint violated")}

	_, err := NewScorer(st, testConfig()).Run(context.Background(), 1, p2024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scorer: save scores")
	assert.Equal(t, 1, st.replaceCalls)
}

func TestRun_InvalidArguments(t *testing.T) {
	s := NewScorer(&memStore{}, testConfig())
	_, err := s.Run(context.Background(), 0, p2024)
	assert.True(t, model.IsValidation(err))
	_, err = s.Run(context.Background(), 1, "")
	assert.True(t, model.IsValidation(err))
}

func TestRun_ConfigHashStable(t *testing.T) {
	st := threePillars()
	s := NewScorer(st, testConfig())
	a, err := s.Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	b, err := s.Run(context.Background(), 1, p2024)
	require.NoError(t, err)

	assert.Equal(t, a.ConfigHash, b.ConfigHash)
	assert.NotEqual(t, a.RunID, b.RunID)

	st.kpiWeights[0].Weight = 90
	c, err := s.Run(context.Background(), 1, p2024)
	require.NoError(t, err)
	assert.NotEqual(t, a.ConfigHash, c.ConfigHash)
}

func TestRun_ConcurrentRunsSameKey(t *testing.T) {
	st := threePillars()
	s := NewScorer(st, testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Run(context.Background(), 1, p2024)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, st.replaceCalls)
	assert.Zero(t, s.locks.size())
}

func openSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_SQLiteIdempotent(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)

	require.NoError(t, st.SaveKPIs(ctx, []model.KPIDefinition{
		{Code: "scope1_emissions", Pillar: model.PillarEnvironmental, NormalizationMethod: model.NormalizeAbsolute, Status: model.KPIStatusActive},
	}))
	_, err := st.SaveMapping(ctx, model.FieldMapping{FormField: "scope1_emissions", KPICode: "scope1_emissions", AggregationMethod: model.AggregateSum})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceKPIWeights(ctx, 1, p2024, []model.KPIWeight{{KPICode: "scope1_emissions", Weight: 100}}))
	_, err = st.UpsertComputed(ctx, 1, p2024, "scope1_emissions", "231")
	require.NoError(t, err)

	s := NewScorer(st, testConfig())
	first, err := s.Run(ctx, 1, p2024)
	require.NoError(t, err)
	second, err := s.Run(ctx, 1, p2024)
	require.NoError(t, err)

	assert.InDelta(t, 100.0, first.PillarScores[model.PillarEnvironmental], 1e-9)
	assert.Equal(t, first.PillarScores, second.PillarScores)
	assert.InDelta(t, first.FinalScore, second.FinalScore, 1e-9)

	kpis, err := st.ListKPIScores(ctx, 1, p2024)
	require.NoError(t, err)
	assert.Len(t, kpis, 1)

	final, err := st.GetFinalScore(ctx, 1, p2024)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, final.RunID)
	assert.InDelta(t, second.FinalScore, final.FinalESGScore, 1e-9)
}
