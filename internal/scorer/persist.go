package scorer

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-scorecard/internal/model"
	"github.com/sells-group/esg-scorecard/internal/resilience"
)

// ScoreWriter persists the outcome of a run.
type ScoreWriter interface {
	ReplaceScores(ctx context.Context, orgID int64, period model.Period, kpis []model.KPIScore, final model.FinalScore) error
}

// saveScores replaces the stored scores for the run's key, retrying
// transient failures.
func saveScores(ctx context.Context, w ScoreWriter, retry resilience.RetryConfig, res *Result) error {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("scorer", "replace_scores")
	}

	final := res.finalRecord()
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return w.ReplaceScores(ctx, res.OrganizationID, res.Period, res.KPIScores, final)
	})
	if err != nil {
		return eris.Wrapf(err, "scorer: save scores for org %d period %s", res.OrganizationID, res.Period)
	}

	zap.L().Info("scorer: saved scores",
		zap.String("run_id", res.RunID),
		zap.Int64("organization_id", res.OrganizationID),
		zap.String("period", res.Period.String()),
		zap.Int("kpis", len(res.KPIScores)),
		zap.Float64("final_score", res.FinalScore),
	)
	return nil
}

// hashInput is everything besides submissions that determines a run's
// output.
type hashInput struct {
	Config        Config                               `json:"config"`
	Methods       map[string]string                    `json:"methods"`
	KPIWeights    map[string]float64                   `json:"kpi_weights"`
	PillarWeights map[model.Pillar]float64             `json:"pillar_weights"`
	Normalization map[string]model.NormalizationMethod `json:"normalization"`
}

// ConfigHash computes a SHA-256 hash of the JSON-serialized value for
// reproducibility tracking. Map keys serialize sorted, so equal inputs
// hash equally.
func ConfigHash(cfg interface{}) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}
