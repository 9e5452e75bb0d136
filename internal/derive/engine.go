// Package derive fills KPI values an organization did not disclose from the
// lower-level inputs it did disclose.
//
// Derived values are written back to the fact store with computed
// provenance. A current disclosed value for a rule's output field always
// wins; the engine never writes over one. A computed value whose rule no
// longer applies is superseded by an empty value.
package derive

import (
	"context"
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// FactStore is the fact access the engine needs.
type FactStore interface {
	CurrentFacts(ctx context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error)
	UpsertComputed(ctx context.Context, orgID int64, period model.Period, field string, value model.Value) (*model.Fact, error)
}

// Warning reports a rule that could not run. It never aborts a derivation.
type Warning struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

func (w Warning) String() string { return "derive: " + w.Rule + ": " + w.Reason }

// Result is the outcome of one derivation.
type Result struct {
	// Derived maps each computed KPI field to its value, whether it was
	// written in this run or already current with the same value.
	Derived map[string]float64 `json:"derived"`
	// Written lists the KPI fields upserted in this run.
	Written []string `json:"written,omitempty"`
	// Overridden lists KPI fields skipped because a disclosed value exists.
	Overridden []string `json:"overridden,omitempty"`
	// Cleared lists computed KPI fields superseded with an empty value
	// because their rule stopped applying.
	Cleared  []string  `json:"cleared,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Engine applies a rule table to one organization and period at a time.
type Engine struct {
	store FactStore
	rules []Rule
	log   *zap.Logger
}

// NewEngine returns an Engine over st using the default rules with the
// given emission factor overrides.
func NewEngine(st FactStore, factors map[string]float64) *Engine {
	return NewEngineWithRules(st, DefaultRules(factors))
}

// NewEngineWithRules returns an Engine with an explicit rule table.
func NewEngineWithRules(st FactStore, rules []Rule) *Engine {
	return &Engine{
		store: st,
		rules: rules,
		log:   zap.L().With(zap.String("component", "derive")),
	}
}

// Rules returns the engine's rule table.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Derive runs every rule against the organization's current disclosed
// inputs for period. Rule failures become warnings; store failures are
// returned as errors.
func (e *Engine) Derive(ctx context.Context, orgID int64, period model.Period) (*Result, error) {
	res := &Result{Derived: make(map[string]float64)}

	facts, err := e.store.CurrentFacts(ctx, orgID, period, model.FactFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "derive: load current facts")
	}
	if len(facts) == 0 {
		return res, nil
	}
	inputs := make(map[string]model.Value, len(facts))
	current := make(map[string]model.Fact, len(facts))
	for _, f := range facts {
		current[f.FieldName] = f
		if f.Provenance == model.ProvenanceDisclosed && !f.IsKPI {
			inputs[f.FieldName] = f.Value
		}
	}

	for _, rule := range e.rules {
		existing, ok := current[rule.Output]
		disclosed := ok && existing.Provenance == model.ProvenanceDisclosed

		value, err := rule.Apply(inputs)
		if err != nil {
			var skip errSkip
			if !errors.As(err, &skip) {
				w := Warning{Rule: rule.Output, Reason: err.Error()}
				e.log.Warn("derive: rule skipped",
					zap.Int64("organization_id", orgID),
					zap.String("period", period.String()),
					zap.String("rule", rule.Output),
					zap.String("reason", w.Reason),
				)
				res.Warnings = append(res.Warnings, w)
			}
			if ok && !disclosed && existing.Value != "" {
				if err := e.write(ctx, orgID, period, rule.Output, ""); err != nil {
					return nil, err
				}
				res.Cleared = append(res.Cleared, rule.Output)
			}
			continue
		}

		if disclosed {
			res.Overridden = append(res.Overridden, rule.Output)
			continue
		}

		res.Derived[rule.Output] = value
		if ok && sameValue(existing.Value, value) {
			continue
		}
		if err := e.write(ctx, orgID, period, rule.Output, model.NumberValue(value)); err != nil {
			return nil, err
		}
		res.Written = append(res.Written, rule.Output)
	}

	sort.Strings(res.Overridden)
	sort.Strings(res.Written)
	sort.Strings(res.Cleared)

	e.log.Debug("derive: complete",
		zap.Int64("organization_id", orgID),
		zap.String("period", period.String()),
		zap.Int("derived", len(res.Derived)),
		zap.Int("written", len(res.Written)),
		zap.Int("overridden", len(res.Overridden)),
		zap.Int("cleared", len(res.Cleared)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

func (e *Engine) write(ctx context.Context, orgID int64, period model.Period, field string, v model.Value) error {
	if _, err := e.store.UpsertComputed(ctx, orgID, period, field, v); err != nil {
		return eris.Wrapf(err, "derive: write %s", field)
	}
	return nil
}

func sameValue(current model.Value, v float64) bool {
	f, ok := current.Float()
	return ok && f == v
}
