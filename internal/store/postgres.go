package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-scorecard/internal/db"
	"github.com/sells-group/esg-scorecard/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     Clock
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: utcNow}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of
// the pool's lifecycle.
func NewPostgresWithPool(pool db.Pool, clock Clock) *PostgresStore {
	if clock == nil {
		clock = utcNow
	}
	return &PostgresStore{pool: pool, now: clock}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS esg_submissions (
	id               BIGSERIAL PRIMARY KEY,
	organization_id  BIGINT NOT NULL,
	reporting_period DATE NOT NULL,
	form_field       TEXT NOT NULL,
	field_value      TEXT NOT NULL DEFAULT '',
	provenance       TEXT NOT NULL DEFAULT 'disclosed',
	is_kpi           BOOLEAN NOT NULL DEFAULT false,
	is_current       BOOLEAN NOT NULL DEFAULT true,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_submissions_current
	ON esg_submissions(organization_id, reporting_period, form_field) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_esg_submissions_history
	ON esg_submissions(organization_id, form_field, id DESC);

CREATE TABLE IF NOT EXISTS esg_kpis (
	kpi_code             TEXT PRIMARY KEY,
	kpi_description      TEXT NOT NULL DEFAULT '',
	pillar               TEXT NOT NULL,
	unit                 TEXT NOT NULL DEFAULT '',
	normalization_method TEXT NOT NULL DEFAULT 'absolute',
	framework_reference  TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'active',
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS esg_field_mappings (
	id                 BIGSERIAL PRIMARY KEY,
	form_field         TEXT NOT NULL,
	reporting_period   DATE,
	kpi_code           TEXT NOT NULL DEFAULT '',
	aggregation_method TEXT NOT NULL DEFAULT 'SUM',
	is_current         BOOLEAN NOT NULL DEFAULT true,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_field_mappings_current
	ON esg_field_mappings(form_field, COALESCE(reporting_period, DATE '0001-01-01')) WHERE is_current;

CREATE TABLE IF NOT EXISTS esg_kpi_weights (
	id               BIGSERIAL PRIMARY KEY,
	organization_id  BIGINT NOT NULL,
	reporting_period DATE NOT NULL,
	kpi_code         TEXT NOT NULL,
	weight           DOUBLE PRECISION NOT NULL,
	is_current       BOOLEAN NOT NULL DEFAULT true,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_kpi_weights_current
	ON esg_kpi_weights(organization_id, reporting_period, kpi_code) WHERE is_current;

CREATE TABLE IF NOT EXISTS esg_pillar_weights (
	id               BIGSERIAL PRIMARY KEY,
	organization_id  BIGINT NOT NULL,
	reporting_period DATE NOT NULL,
	pillar           TEXT NOT NULL,
	pillar_weight    DOUBLE PRECISION NOT NULL,
	is_current       BOOLEAN NOT NULL DEFAULT true,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_pillar_weights_current
	ON esg_pillar_weights(organization_id, reporting_period, pillar) WHERE is_current;

CREATE TABLE IF NOT EXISTS esg_kpi_scores (
	organization_id  BIGINT NOT NULL,
	reporting_period DATE NOT NULL,
	kpi_code         TEXT NOT NULL,
	pillar           TEXT NOT NULL,
	raw_value        TEXT NOT NULL DEFAULT '',
	user_weightage   DOUBLE PRECISION NOT NULL,
	normalized_score DOUBLE PRECISION NOT NULL,
	weighted_score   DOUBLE PRECISION NOT NULL,
	computed_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (organization_id, reporting_period, kpi_code)
);

CREATE TABLE IF NOT EXISTS esg_final_scores (
	run_id              UUID NOT NULL,
	organization_id     BIGINT NOT NULL,
	reporting_period    DATE NOT NULL,
	environmental_score DOUBLE PRECISION NOT NULL,
	social_score        DOUBLE PRECISION NOT NULL,
	governance_score    DOUBLE PRECISION NOT NULL,
	final_esg_score     DOUBLE PRECISION NOT NULL,
	config_hash         TEXT NOT NULL DEFAULT '',
	computed_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (organization_id, reporting_period)
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Facts

const factColumns = `id, organization_id, reporting_period, form_field, field_value, provenance, is_kpi, is_current, created_at, updated_at`

func (s *PostgresStore) UpsertFact(ctx context.Context, in model.FactInput) (*model.Fact, error) {
	in, err := model.ValidateSubmission(in)
	if err != nil {
		return nil, err
	}
	return s.writeFact(ctx, in)
}

func (s *PostgresStore) UpsertComputed(ctx context.Context, orgID int64, period model.Period, field string, value model.Value) (*model.Fact, error) {
	in, err := model.ValidateFact(computedInput(orgID, period, field, value))
	if err != nil {
		return nil, err
	}
	return s.writeFact(ctx, in)
}

func (s *PostgresStore) writeFact(ctx context.Context, in model.FactInput) (*model.Fact, error) {
	now := s.now()
	f := model.Fact{
		OrganizationID: in.OrganizationID,
		Period:         in.Period,
		FieldName:      in.FieldName,
		Value:          in.Value,
		Provenance:     in.Provenance,
		IsKPI:          in.IsKPI,
		IsCurrent:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := db.InTx(ctx, s.pool, "postgres: upsert fact", func(tx pgx.Tx) error {
		// One writer per key at a time; the partial unique index admits a
		// single current row.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, factLockKey(in)); err != nil {
			return eris.Wrapf(err, "postgres: lock fact %s", in.FieldName)
		}

		// The first version's created_at carries forward to every later version.
		err := tx.QueryRow(ctx,
			`UPDATE esg_submissions SET is_current = false
			 WHERE organization_id = $1 AND reporting_period = $2 AND form_field = $3 AND is_current
			 RETURNING created_at`,
			in.OrganizationID, in.Period.Date(), in.FieldName,
		).Scan(&f.CreatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(err, "postgres: retire current fact %s", in.FieldName)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO esg_submissions (organization_id, reporting_period, form_field, field_value, provenance, is_kpi, is_current, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8) RETURNING id`,
			f.OrganizationID, f.Period.Date(), f.FieldName, string(f.Value), string(f.Provenance), f.IsKPI, f.CreatedAt, f.UpdatedAt,
		).Scan(&f.ID)
		return eris.Wrapf(err, "postgres: insert fact %s", in.FieldName)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) CurrentFacts(ctx context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM esg_submissions
		WHERE organization_id = $1 AND reporting_period = $2 AND is_current`
	args := []any{orgID, period.Date()}
	argIdx := 3

	if filter.FieldName != "" {
		query += fmt.Sprintf(` AND form_field = $%d`, argIdx)
		args = append(args, filter.FieldName)
		argIdx++
	}
	if filter.Provenance != "" {
		query += fmt.Sprintf(` AND provenance = $%d`, argIdx)
		args = append(args, string(filter.Provenance))
		argIdx++
	}
	if filter.IsKPI != nil {
		query += fmt.Sprintf(` AND is_kpi = $%d`, argIdx)
		args = append(args, *filter.IsKPI)
	}
	query += ` ORDER BY form_field`

	return s.queryFacts(ctx, "current facts", query, args...)
}

func (s *PostgresStore) FactHistory(ctx context.Context, orgID int64, period model.Period, field string) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM esg_submissions WHERE organization_id = $1 AND form_field = $2`
	args := []any{orgID, field}
	if !period.IsZero() {
		query += ` AND reporting_period = $3`
		args = append(args, period.Date())
	}
	query += ` ORDER BY id DESC`

	return s.queryFacts(ctx, "fact history", query, args...)
}

func (s *PostgresStore) LatestPeriod(ctx context.Context, orgID int64) (model.Period, error) {
	var d *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(reporting_period) FROM esg_submissions WHERE organization_id = $1 AND is_current`,
		orgID,
	).Scan(&d)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: latest period for org %d", orgID)
	}
	if d == nil {
		return "", ErrNotFound
	}
	return model.PeriodOf(*d), nil
}

func (s *PostgresStore) queryFacts(ctx context.Context, what, query string, args ...any) ([]model.Fact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", what)
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		var f model.Fact
		var period time.Time
		var value, provenance string
		if err := rows.Scan(&f.ID, &f.OrganizationID, &period, &f.FieldName, &value, &provenance,
			&f.IsKPI, &f.IsCurrent, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", what)
		}
		f.Period = model.PeriodOf(period)
		f.Value = model.Value(value)
		f.Provenance = model.Provenance(provenance)
		facts = append(facts, f)
	}
	return facts, eris.Wrapf(rows.Err(), "postgres: %s iterate", what)
}

// Catalog

func (s *PostgresStore) ListKPIs(ctx context.Context, activeOnly bool) ([]model.KPIDefinition, error) {
	query := `SELECT kpi_code, kpi_description, pillar, unit, normalization_method, framework_reference, status FROM esg_kpis`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY kpi_code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpis")
	}
	defer rows.Close()

	var kpis []model.KPIDefinition
	for rows.Next() {
		var k model.KPIDefinition
		var pillar, method, status string
		if err := rows.Scan(&k.Code, &k.Description, &pillar, &k.Unit, &method, &k.FrameworkReference, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi")
		}
		k.Pillar = model.Pillar(pillar)
		k.NormalizationMethod = model.NormalizationMethod(method)
		k.Status = model.KPIStatus(status)
		kpis = append(kpis, k)
	}
	return kpis, eris.Wrap(rows.Err(), "postgres: list kpis iterate")
}

func (s *PostgresStore) ListMappings(ctx context.Context, filter model.MappingFilter) ([]model.FieldMapping, error) {
	query := `SELECT id, form_field, reporting_period, kpi_code, aggregation_method, is_current, updated_at
		FROM esg_field_mappings WHERE true`
	var args []any
	argIdx := 1

	if filter.FormField != "" {
		query += fmt.Sprintf(` AND form_field = $%d`, argIdx)
		args = append(args, filter.FormField)
		argIdx++
	}
	if !filter.Period.IsZero() {
		query += fmt.Sprintf(` AND reporting_period = $%d`, argIdx)
		args = append(args, filter.Period.Date())
	}
	if filter.CurrentOnly {
		query += ` AND is_current`
	}
	query += ` ORDER BY form_field, reporting_period NULLS FIRST, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	defer rows.Close()

	var mappings []model.FieldMapping
	for rows.Next() {
		var m model.FieldMapping
		var period *time.Time
		var method string
		if err := rows.Scan(&m.ID, &m.FormField, &period, &m.KPICode, &method, &m.IsCurrent, &m.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		if period != nil {
			m.Period = model.PeriodOf(*period)
		}
		m.AggregationMethod = model.AggregationMethod(method)
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "postgres: list mappings iterate")
}

func (s *PostgresStore) ListKPIWeights(ctx context.Context, filter model.WeightFilter) ([]model.KPIWeight, error) {
	query, args := weightQuery(`SELECT organization_id, reporting_period, kpi_code, weight, is_current, updated_at FROM esg_kpi_weights`, filter)
	query += ` ORDER BY reporting_period DESC, kpi_code`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpi weights")
	}
	defer rows.Close()

	var weights []model.KPIWeight
	for rows.Next() {
		var w model.KPIWeight
		var period time.Time
		if err := rows.Scan(&w.OrganizationID, &period, &w.KPICode, &w.Weight, &w.IsCurrent, &w.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi weight")
		}
		w.Period = model.PeriodOf(period)
		weights = append(weights, w)
	}
	return weights, eris.Wrap(rows.Err(), "postgres: list kpi weights iterate")
}

func (s *PostgresStore) ListPillarWeights(ctx context.Context, filter model.WeightFilter) ([]model.PillarWeight, error) {
	query, args := weightQuery(`SELECT organization_id, reporting_period, pillar, pillar_weight, is_current, updated_at FROM esg_pillar_weights`, filter)
	query += ` ORDER BY reporting_period DESC, pillar`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pillar weights")
	}
	defer rows.Close()

	var weights []model.PillarWeight
	for rows.Next() {
		var w model.PillarWeight
		var period time.Time
		var pillar string
		if err := rows.Scan(&w.OrganizationID, &period, &pillar, &w.Weight, &w.IsCurrent, &w.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pillar weight")
		}
		w.Period = model.PeriodOf(period)
		w.Pillar = model.Pillar(pillar)
		weights = append(weights, w)
	}
	return weights, eris.Wrap(rows.Err(), "postgres: list pillar weights iterate")
}

func weightQuery(base string, filter model.WeightFilter) (string, []any) {
	query := base + ` WHERE organization_id = $1`
	args := []any{filter.OrganizationID}
	if !filter.Period.IsZero() {
		query += ` AND reporting_period = $2`
		args = append(args, filter.Period.Date())
	}
	if filter.CurrentOnly {
		query += ` AND is_current`
	}
	return query, args
}

var kpiTable = db.Table{
	Name: "esg_kpis",
	Columns: []string{
		"kpi_code", "kpi_description", "pillar", "unit",
		"normalization_method", "framework_reference", "status", "updated_at",
	},
}

func (s *PostgresStore) SaveKPIs(ctx context.Context, kpis []model.KPIDefinition) error {
	now := s.now()
	rows := make([][]any, 0, len(kpis))
	for _, k := range kpis {
		status := k.Status
		if status == "" {
			status = model.KPIStatusActive
		}
		method, _ := model.ParseNormalizationMethod(string(k.NormalizationMethod))
		rows = append(rows, []any{
			k.Code, k.Description, string(k.Pillar), k.Unit,
			string(method), k.FrameworkReference, string(status), now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.InTx(ctx, s.pool, "postgres: save kpis", func(tx pgx.Tx) error {
		_, err := kpiTable.Merge(ctx, tx, []string{"kpi_code"}, rows)
		return err
	})
}

func (s *PostgresStore) SaveMapping(ctx context.Context, m model.FieldMapping) (*model.FieldMapping, error) {
	method, _ := model.ParseAggregationMethod(string(m.AggregationMethod))
	m.AggregationMethod = method
	m.IsCurrent = true
	m.UpdatedAt = s.now()

	var period *time.Time
	if !m.Period.IsZero() {
		d := m.Period.Date()
		period = &d
	}

	err := db.InTx(ctx, s.pool, "postgres: save mapping", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE esg_field_mappings SET is_current = false
			 WHERE form_field = $1 AND reporting_period IS NOT DISTINCT FROM $2 AND is_current`,
			m.FormField, period,
		); err != nil {
			return eris.Wrapf(err, "postgres: retire mapping %s", m.FormField)
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO esg_field_mappings (form_field, reporting_period, kpi_code, aggregation_method, is_current, updated_at)
			 VALUES ($1, $2, $3, $4, true, $5) RETURNING id`,
			m.FormField, period, m.KPICode, string(m.AggregationMethod), m.UpdatedAt,
		).Scan(&m.ID)
		return eris.Wrapf(err, "postgres: insert mapping %s", m.FormField)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ReplaceKPIWeights(ctx context.Context, orgID int64, period model.Period, weights []model.KPIWeight) error {
	now := s.now()
	rows := make([][]any, 0, len(weights))
	for _, w := range weights {
		rows = append(rows, []any{orgID, period.Date(), w.KPICode, w.Weight, true, now})
	}
	return s.replaceWeights(ctx, kpiWeightTable, orgID, period, rows)
}

func (s *PostgresStore) ReplacePillarWeights(ctx context.Context, orgID int64, period model.Period, weights []model.PillarWeight) error {
	now := s.now()
	rows := make([][]any, 0, len(weights))
	for _, w := range weights {
		rows = append(rows, []any{orgID, period.Date(), string(w.Pillar), w.Weight, true, now})
	}
	return s.replaceWeights(ctx, pillarWeightTable, orgID, period, rows)
}

var (
	kpiWeightTable = db.Table{
		Name:    "esg_kpi_weights",
		Columns: []string{"organization_id", "reporting_period", "kpi_code", "weight", "is_current", "updated_at"},
	}
	pillarWeightTable = db.Table{
		Name:    "esg_pillar_weights",
		Columns: []string{"organization_id", "reporting_period", "pillar", "pillar_weight", "is_current", "updated_at"},
	}
)

func (s *PostgresStore) replaceWeights(ctx context.Context, t db.Table, orgID int64, period model.Period, rows [][]any) error {
	return db.InTx(ctx, s.pool, "postgres: replace "+t.Name, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET is_current = false WHERE organization_id = $1 AND reporting_period = $2 AND is_current`, t.Name),
			orgID, period.Date(),
		); err != nil {
			return eris.Wrapf(err, "postgres: retire %s", t.Name)
		}
		_, err := t.Copy(ctx, tx, rows)
		return eris.Wrapf(err, "postgres: insert %s", t.Name)
	})
}

// Scores

var kpiScoreTable = db.Table{
	Name: "esg_kpi_scores",
	Columns: []string{
		"organization_id", "reporting_period", "kpi_code", "pillar", "raw_value",
		"user_weightage", "normalized_score", "weighted_score", "computed_at",
	},
}

func (s *PostgresStore) ReplaceScores(ctx context.Context, orgID int64, period model.Period, kpis []model.KPIScore, final model.FinalScore) error {
	rows := make([][]any, 0, len(kpis))
	for _, k := range kpis {
		rows = append(rows, []any{
			orgID, period.Date(), k.KPICode, string(k.Pillar), string(k.RawValue),
			k.Weight, k.NormalizedScore, k.WeightedScore, k.ComputedAt,
		})
	}

	return db.InTx(ctx, s.pool, "postgres: replace scores", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scoreLockKey(orgID, period)); err != nil {
			return eris.Wrap(err, "postgres: replace scores: lock")
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM esg_kpi_scores WHERE organization_id = $1 AND reporting_period = $2`,
			orgID, period.Date(),
		); err != nil {
			return eris.Wrap(err, "postgres: clear kpi scores")
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM esg_final_scores WHERE organization_id = $1 AND reporting_period = $2`,
			orgID, period.Date(),
		); err != nil {
			return eris.Wrap(err, "postgres: clear final score")
		}

		if _, err := kpiScoreTable.Copy(ctx, tx, rows); err != nil {
			return eris.Wrap(err, "postgres: insert kpi scores")
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO esg_final_scores (run_id, organization_id, reporting_period, environmental_score, social_score, governance_score, final_esg_score, config_hash, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			final.RunID, orgID, period.Date(), final.EnvironmentalScore, final.SocialScore,
			final.GovernanceScore, final.FinalESGScore, final.ConfigHash, final.ComputedAt,
		)
		return eris.Wrap(err, "postgres: insert final score")
	})
}

func (s *PostgresStore) GetFinalScore(ctx context.Context, orgID int64, period model.Period) (*model.FinalScore, error) {
	var f model.FinalScore
	var p time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT run_id::text, organization_id, reporting_period, environmental_score, social_score, governance_score, final_esg_score, config_hash, computed_at
		 FROM esg_final_scores WHERE organization_id = $1 AND reporting_period = $2`,
		orgID, period.Date(),
	).Scan(&f.RunID, &f.OrganizationID, &p, &f.EnvironmentalScore, &f.SocialScore,
		&f.GovernanceScore, &f.FinalESGScore, &f.ConfigHash, &f.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get final score for org %d", orgID)
	}
	f.Period = model.PeriodOf(p)
	return &f, nil
}

func (s *PostgresStore) ListKPIScores(ctx context.Context, orgID int64, period model.Period) ([]model.KPIScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT organization_id, reporting_period, kpi_code, pillar, raw_value, user_weightage, normalized_score, weighted_score, computed_at
		 FROM esg_kpi_scores WHERE organization_id = $1 AND reporting_period = $2 ORDER BY kpi_code`,
		orgID, period.Date(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpi scores")
	}
	defer rows.Close()

	var scores []model.KPIScore
	for rows.Next() {
		var k model.KPIScore
		var p time.Time
		var pillar, raw string
		if err := rows.Scan(&k.OrganizationID, &p, &k.KPICode, &pillar, &raw,
			&k.Weight, &k.NormalizedScore, &k.WeightedScore, &k.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi score")
		}
		k.Period = model.PeriodOf(p)
		k.Pillar = model.Pillar(pillar)
		k.RawValue = model.Value(raw)
		scores = append(scores, k)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: list kpi scores iterate")
}
