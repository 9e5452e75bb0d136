// Package pipeline is the entry point for ingestion, derivation, and
// scoring. Transports (CLI, HTTP) call it; it never talks to them.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-scorecard/internal/derive"
	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/scorer"
	"github.com/sells-group/esg-scorecard/internal/store"
)

// Deriver fills KPI values from disclosed inputs.
type Deriver interface {
	Derive(ctx context.Context, orgID int64, period model.Period) (*derive.Result, error)
}

// Runner computes and persists scores.
type Runner interface {
	Run(ctx context.Context, orgID int64, period model.Period) (*scorer.Result, error)
}

// Pipeline wires the fact store, derivation engine, and scorer together.
type Pipeline struct {
	facts   store.FactStore
	deriver Deriver
	scorer  Runner
	log     *zap.Logger
}

// New creates a Pipeline.
func New(facts store.FactStore, d Deriver, s Runner) *Pipeline {
	return &Pipeline{
		facts:   facts,
		deriver: d,
		scorer:  s,
		log:     zap.L().With(zap.String("component", "pipeline")),
	}
}

// SubmitResult is a stored fact and, for disclosed inputs, the derivation
// that followed it.
type SubmitResult struct {
	Fact       *model.Fact    `json:"fact"`
	Derivation *derive.Result `json:"derivation,omitempty"`
}

// Submit stores one fact. A disclosed input triggers derivation for its
// organization and period; a derivation failure is logged, not returned.
func (p *Pipeline) Submit(ctx context.Context, in model.FactInput) (*SubmitResult, error) {
	f, err := p.facts.UpsertFact(ctx, in)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: submit %s", in.FieldName)
	}

	res := &SubmitResult{Fact: f}
	if triggersDerivation(f) {
		res.Derivation = p.deriveQuietly(ctx, f.OrganizationID, f.Period)
	}
	return res, nil
}

// BatchResult is the outcome of SubmitBatch.
type BatchResult struct {
	Facts      []model.Fact   `json:"facts"`
	Derivation *derive.Result `json:"derivation,omitempty"`
}

// SubmitBatch stores several facts for one organization and period. Every
// input is validated before anything is written. Derivation runs once at
// the end when any disclosed input was stored.
func (p *Pipeline) SubmitBatch(ctx context.Context, orgID int64, period model.Period, inputs []model.FactInput) (*BatchResult, error) {
	if len(inputs) == 0 {
		return nil, model.NewValidationError("submissions", "batch is empty")
	}

	for i := range inputs {
		inputs[i].OrganizationID = orgID
		inputs[i].Period = period
		if _, err := model.ValidateSubmission(inputs[i]); err != nil {
			return nil, err
		}
	}

	res := &BatchResult{Facts: make([]model.Fact, 0, len(inputs))}
	derivePending := false
	for _, in := range inputs {
		f, err := p.facts.UpsertFact(ctx, in)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: submit %s", in.FieldName)
		}
		res.Facts = append(res.Facts, *f)
		derivePending = derivePending || triggersDerivation(f)
	}

	if derivePending {
		res.Derivation = p.deriveQuietly(ctx, orgID, res.Facts[0].Period)
	}

	p.log.Info("pipeline: batch stored",
		zap.Int64("organization_id", orgID),
		zap.String("period", period.String()),
		zap.Int("facts", len(res.Facts)),
	)
	return res, nil
}

// Derive runs the derivation engine for an organization and period.
func (p *Pipeline) Derive(ctx context.Context, orgID int64, period model.Period) (*derive.Result, error) {
	if orgID <= 0 {
		return nil, model.NewValidationError("organization_id", "must be positive, got %d", orgID)
	}
	parsed, err := model.ParsePeriod(string(period))
	if err != nil {
		return nil, model.NewValidationError("reporting_period", "invalid period %q", period)
	}

	res, err := p.deriver.Derive(ctx, orgID, parsed)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: derive")
	}
	return res, nil
}

// ScoreOptions tunes Score.
type ScoreOptions struct {
	// SkipDerive scores current facts as they are.
	SkipDerive bool
}

// Score derives missing KPIs (unless skipped) and runs scoring. A
// derivation failure is logged and scoring proceeds on the facts present.
func (p *Pipeline) Score(ctx context.Context, orgID int64, period model.Period, opts ScoreOptions) (*scorer.Result, error) {
	if orgID <= 0 {
		return nil, model.NewValidationError("organization_id", "must be positive, got %d", orgID)
	}
	parsed, err := model.ParsePeriod(string(period))
	if err != nil {
		return nil, model.NewValidationError("reporting_period", "invalid period %q", period)
	}

	if !opts.SkipDerive {
		p.deriveQuietly(ctx, orgID, parsed)
	}

	res, err := p.scorer.Run(ctx, orgID, parsed)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: score")
	}
	return res, nil
}

// LatestPeriod returns the most recent period with current submissions.
func (p *Pipeline) LatestPeriod(ctx context.Context, orgID int64) (model.Period, error) {
	period, err := p.facts.LatestPeriod(ctx, orgID)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: latest period")
	}
	return period, nil
}

func (p *Pipeline) deriveQuietly(ctx context.Context, orgID int64, period model.Period) *derive.Result {
	res, err := p.deriver.Derive(ctx, orgID, period)
	if err != nil {
		p.log.Warn("pipeline: derivation failed",
			zap.Int64("organization_id", orgID),
			zap.String("period", period.String()),
			zap.Error(err),
		)
		return nil
	}
	for _, w := range res.Warnings {
		p.log.Debug("pipeline: derivation warning", zap.String("warning", w.String()))
	}
	return res
}

func triggersDerivation(f *model.Fact) bool {
	return f.Provenance == model.ProvenanceDisclosed && !f.IsKPI
}
