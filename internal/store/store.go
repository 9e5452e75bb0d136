// Package store persists versioned submissions, the scoring catalog, and
// computed scores. PostgresStore is the production backend; SQLiteStore
// serves local runs and tests.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// FactStore holds every submitted value, versioned per
// (organization, period, field). Exactly one row per key is current.
type FactStore interface {
	// UpsertFact validates in, retires the current row for its key, and
	// inserts a new current row. Both steps share one transaction. Computed
	// provenance is rejected.
	UpsertFact(ctx context.Context, in model.FactInput) (*model.Fact, error)
	// UpsertComputed writes a derived KPI value with computed provenance.
	// Only the derivation engine calls it.
	UpsertComputed(ctx context.Context, orgID int64, period model.Period, field string, value model.Value) (*model.Fact, error)
	// CurrentFacts returns the current rows for an organization and period
	// that match filter, ordered by field name.
	CurrentFacts(ctx context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error)
	// FactHistory returns every version of a field, most recent first. An
	// empty period spans all periods.
	FactHistory(ctx context.Context, orgID int64, period model.Period, field string) ([]model.Fact, error)
	// LatestPeriod returns the most recent period with current rows.
	LatestPeriod(ctx context.Context, orgID int64) (model.Period, error)
}

// CatalogReader reads KPI definitions, field mappings, and weights.
type CatalogReader interface {
	ListKPIs(ctx context.Context, activeOnly bool) ([]model.KPIDefinition, error)
	ListMappings(ctx context.Context, filter model.MappingFilter) ([]model.FieldMapping, error)
	ListKPIWeights(ctx context.Context, filter model.WeightFilter) ([]model.KPIWeight, error)
	ListPillarWeights(ctx context.Context, filter model.WeightFilter) ([]model.PillarWeight, error)
}

// CatalogWriter is the administrative side of the catalog.
type CatalogWriter interface {
	// SaveKPIs inserts or updates definitions by kpi_code.
	SaveKPIs(ctx context.Context, kpis []model.KPIDefinition) error
	// SaveMapping supersedes the current mapping for (form_field, period).
	SaveMapping(ctx context.Context, m model.FieldMapping) (*model.FieldMapping, error)
	// ReplaceKPIWeights supersedes all current KPI weights for the
	// organization and period with weights.
	ReplaceKPIWeights(ctx context.Context, orgID int64, period model.Period, weights []model.KPIWeight) error
	// ReplacePillarWeights does the same for pillar weights.
	ReplacePillarWeights(ctx context.Context, orgID int64, period model.Period, weights []model.PillarWeight) error
}

// ScoreStore owns the per-KPI and final score records.
type ScoreStore interface {
	// ReplaceScores deletes every score row for (orgID, period) and writes
	// kpis and final in the same transaction.
	ReplaceScores(ctx context.Context, orgID int64, period model.Period, kpis []model.KPIScore, final model.FinalScore) error
	GetFinalScore(ctx context.Context, orgID int64, period model.Period) (*model.FinalScore, error)
	ListKPIScores(ctx context.Context, orgID int64, period model.Period) ([]model.KPIScore, error)
}

// Store is the full persistence contract.
type Store interface {
	FactStore
	CatalogReader
	CatalogWriter
	ScoreStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Clock returns the current time. Stores stamp rows with it.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func computedInput(orgID int64, period model.Period, field string, value model.Value) model.FactInput {
	return model.FactInput{
		OrganizationID: orgID,
		Period:         period,
		FieldName:      field,
		Value:          value,
		Provenance:     model.ProvenanceComputed,
		IsKPI:          true,
	}
}

// factLockKey names the advisory lock serializing writes to one fact key.
func factLockKey(in model.FactInput) string {
	return "esg_submissions:" + in.Period.String() + ":" + strconv.FormatInt(in.OrganizationID, 10) + ":" + in.FieldName
}

// scoreLockKey names the advisory lock serializing score writes.
func scoreLockKey(orgID int64, period model.Period) string {
	return "esg_scores:" + period.String() + ":" + strconv.FormatInt(orgID, 10)
}
