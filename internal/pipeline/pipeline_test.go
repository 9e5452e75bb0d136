package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-scorecard/internal/derive"
	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/scorer"
	"github.com/sells-group/esg-scorecard/internal/store"
)

type mockDeriver struct {
	mock.Mock
}

func (m *mockDeriver) Derive(ctx context.Context, orgID int64, period model.Period) (*derive.Result, error) {
	args := m.Called(ctx, orgID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*derive.Result), args.Error(1)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, orgID int64, period model.Period) (*scorer.Result, error) {
	args := m.Called(ctx, orgID, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scorer.Result), args.Error(1)
}

var p2024 = model.MustPeriod("2024-01-01")

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSubmit_DisclosedInputTriggersDerive(t *testing.T) {
	st := newTestStore(t)
	d := new(mockDeriver)
	d.On("Derive", mock.Anything, int64(1), p2024).Return(&derive.Result{Derived: map[string]float64{"scope1_emissions": 231}}, nil).Once()

	res, err := New(st, d, new(mockRunner)).Submit(context.Background(), model.FactInput{
		OrganizationID: 1, Period: p2024, FieldName: "petrol_consumption", Value: "100",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceDisclosed, res.Fact.Provenance)
	require.NotNil(t, res.Derivation)
	assert.InDelta(t, 231.0, res.Derivation.Derived["scope1_emissions"], 1e-9)
	d.AssertExpectations(t)
}

func TestSubmit_KPIDoesNotTriggerDerive(t *testing.T) {
	st := newTestStore(t)
	d := new(mockDeriver)

	res, err := New(st, d, new(mockRunner)).Submit(context.Background(), model.FactInput{
		OrganizationID: 1, Period: p2024, FieldName: "scope1_emissions", Value: "500", IsKPI: true,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Derivation)
	d.AssertNotCalled(t, "Derive", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_DeriveFailureIsNotFatal(t *testing.T) {
	st := newTestStore(t)
	d := new(mockDeriver)
	d.On("Derive", mock.Anything, int64(1), p2024).Return(nil, errors.New("boom"))

	res, err := New(st, d, new(mockRunner)).Submit(context.Background(), model.FactInput{
		OrganizationID: 1, Period: p2024, FieldName: "petrol_consumption", Value: "100",
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Fact)
	assert.Nil(t, res.Derivation)
}

func TestSubmit_ValidationError(t *testing.T) {
	st := newTestStore(t)
	_, err := New(st, new(mockDeriver), new(mockRunner)).Submit(context.Background(), model.FactInput{
		OrganizationID: 1, Period: p2024, FieldName: "petrol_consumption", Value: "-4",
	})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestSubmit_RejectsComputedProvenance(t *testing.T) {
	st := newTestStore(t)
	d := new(mockDeriver)
	p := New(st, d, new(mockRunner))

	_, err := p.Submit(context.Background(), model.FactInput{
		OrganizationID: 1, Period: p2024, FieldName: "scope1_emissions", Value: "1",
		Provenance: model.ProvenanceComputed, IsKPI: true,
	})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	_, err = p.SubmitBatch(context.Background(), 1, p2024, []model.FactInput{
		{FieldName: "petrol_consumption", Value: "100"},
		{FieldName: "scope1_emissions", Value: "1", Provenance: model.ProvenanceComputed, IsKPI: true},
	})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	facts, err := st.CurrentFacts(context.Background(), 1, p2024, model.FactFilter{})
	require.NoError(t, err)
	assert.Empty(t, facts)
	d.AssertNotCalled(t, "Derive", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitBatch(t *testing.T) {
	st := newTestStore(t)
	d := new(mockDeriver)
	d.On("Derive", mock.Anything, int64(1), p2024).Return(&derive.Result{}, nil).Once()

	res, err := New(st, d, new(mockRunner)).SubmitBatch(context.Background(), 1, p2024, []model.FactInput{
		{FieldName: "petrol_consumption", Value: "100"},
		{FieldName: "diesel_consumption", Value: "10"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Facts, 2)
	assert.NotNil(t, res.Derivation)
	d.AssertExpectations(t)

	current, err := st.CurrentFacts(context.Background(), 1, p2024, model.FactFilter{})
	require.NoError(t, err)
	assert.Len(t, current, 2)
}

func TestSubmitBatch_Rejections(t *testing.T) {
	st := newTestStore(t)
	p := New(st, new(mockDeriver), new(mockRunner))

	_, err := p.SubmitBatch(context.Background(), 1, p2024, nil)
	assert.True(t, model.IsValidation(err))

	// one bad row rejects the whole batch before any write
	_, err = p.SubmitBatch(context.Background(), 1, p2024, []model.FactInput{
		{FieldName: "petrol_consumption", Value: "100"},
		{FieldName: "diesel_consumption", Value: "-1"},
	})
	assert.True(t, model.IsValidation(err))

	current, err := st.CurrentFacts(context.Background(), 1, p2024, model.FactFilter{})
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		opts       ScoreOptions
		deriveErr  error
		wantDerive bool
	}{
		{name: "derives first", wantDerive: true},
		{name: "skip derive", opts: ScoreOptions{SkipDerive: true}},
		{name: "derive failure still scores", deriveErr: errors.New("boom"), wantDerive: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(mockDeriver)
			r := new(mockRunner)
			if tt.wantDerive {
				if tt.deriveErr != nil {
					d.On("Derive", mock.Anything, int64(7), p2024).Return(nil, tt.deriveErr).Once()
				} else {
					d.On("Derive", mock.Anything, int64(7), p2024).Return(&derive.Result{}, nil).Once()
				}
			}
			r.On("Run", mock.Anything, int64(7), p2024).Return(&scorer.Result{FinalScore: 42}, nil).Once()

			res, err := New(newTestStore(t), d, r).Score(context.Background(), 7, "2024-01-01", tt.opts)
			require.NoError(t, err)
			assert.InDelta(t, 42.0, res.FinalScore, 1e-9)
			d.AssertExpectations(t)
			r.AssertExpectations(t)
			if !tt.wantDerive {
				d.AssertNotCalled(t, "Derive", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestScore_InvalidArguments(t *testing.T) {
	p := New(newTestStore(t), new(mockDeriver), new(mockRunner))
	_, err := p.Score(context.Background(), 0, p2024, ScoreOptions{})
	assert.True(t, model.IsValidation(err))
	_, err = p.Score(context.Background(), 1, "2024-13-01", ScoreOptions{})
	assert.True(t, model.IsValidation(err))
	_, err = p.Derive(context.Background(), 1, "")
	assert.True(t, model.IsValidation(err))
}

func TestScore_RunnerError(t *testing.T) {
	r := new(mockRunner)
	r.On("Run", mock.Anything, int64(1), p2024).Return(nil, errors.New("db down"))

	_, err := New(newTestStore(t), new(mockDeriver), r).Score(context.Background(), 1, p2024, ScoreOptions{SkipDerive: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: score")
}

func TestLatestPeriod_NotFound(t *testing.T) {
	_, err := New(newTestStore(t), new(mockDeriver), new(mockRunner)).LatestPeriod(context.Background(), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// TestEndToEnd runs the petrol scenario through the real engine and scorer.
func TestEndToEnd_PetrolScenario(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.SaveKPIs(ctx, []model.KPIDefinition{{
		Code: "scope1_emissions", Pillar: model.PillarEnvironmental,
		NormalizationMethod: model.NormalizeInverse, Status: model.KPIStatusActive,
	}}))
	_, err := st.SaveMapping(ctx, model.FieldMapping{FormField: "scope1_emissions", KPICode: "scope1_emissions", AggregationMethod: model.AggregateSum})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceKPIWeights(ctx, 1, p2024, []model.KPIWeight{{KPICode: "scope1_emissions", Weight: 100}}))
	require.NoError(t, st.ReplacePillarWeights(ctx, 1, p2024, []model.PillarWeight{
		{Pillar: model.PillarEnvironmental, Weight: 100},
	}))

	p := New(st, derive.NewEngine(st, nil), scorer.NewScorer(st, scorer.DefaultConfig()))
	_, err = p.Submit(ctx, model.FactInput{OrganizationID: 1, Period: p2024, FieldName: "petrol_consumption", Value: "100"})
	require.NoError(t, err)

	res, err := p.Score(ctx, 1, p2024, ScoreOptions{})
	require.NoError(t, err)

	require.Len(t, res.KPIScores, 1)
	assert.Equal(t, model.Value("231"), res.KPIScores[0].RawValue)
	// inverse: 100 - 231/1000*100
	assert.InDelta(t, 76.9, res.PillarScores[model.PillarEnvironmental], 1e-9)
	assert.InDelta(t, 76.9, res.FinalScore, 1e-9)

	period, err := p.LatestPeriod(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, p2024, period)
}
