package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/esg-scorecard/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now Clock
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// SQLite has a single writer; one connection keeps transactions from
	// tripping over each other's locks.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: utcNow}, nil
}

// SetClock replaces the clock used to stamp rows.
func (s *SQLiteStore) SetClock(c Clock) {
	if c != nil {
		s.now = c
	}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS esg_submissions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id  INTEGER NOT NULL,
	reporting_period TEXT NOT NULL,
	form_field       TEXT NOT NULL,
	field_value      TEXT NOT NULL DEFAULT '',
	provenance       TEXT NOT NULL DEFAULT 'disclosed',
	is_kpi           INTEGER NOT NULL DEFAULT 0,
	is_current       INTEGER NOT NULL DEFAULT 1,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_submissions_current
	ON esg_submissions(organization_id, reporting_period, form_field) WHERE is_current = 1;
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
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS esg_field_mappings (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	form_field         TEXT NOT NULL,
	reporting_period   TEXT NOT NULL DEFAULT '',
	kpi_code           TEXT NOT NULL DEFAULT '',
	aggregation_method TEXT NOT NULL DEFAULT 'SUM',
	is_current         INTEGER NOT NULL DEFAULT 1,
	updated_at         DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_field_mappings_current
	ON esg_field_mappings(form_field, reporting_period) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS esg_kpi_weights (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id  INTEGER NOT NULL,
	reporting_period TEXT NOT NULL,
	kpi_code         TEXT NOT NULL,
	weight           REAL NOT NULL,
	is_current       INTEGER NOT NULL DEFAULT 1,
	updated_at       DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_kpi_weights_current
	ON esg_kpi_weights(organization_id, reporting_period, kpi_code) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS esg_pillar_weights (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id  INTEGER NOT NULL,
	reporting_period TEXT NOT NULL,
	pillar           TEXT NOT NULL,
	pillar_weight    REAL NOT NULL,
	is_current       INTEGER NOT NULL DEFAULT 1,
	updated_at       DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_esg_pillar_weights_current
	ON esg_pillar_weights(organization_id, reporting_period, pillar) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS esg_kpi_scores (
	organization_id  INTEGER NOT NULL,
	reporting_period TEXT NOT NULL,
	kpi_code         TEXT NOT NULL,
	pillar           TEXT NOT NULL,
	raw_value        TEXT NOT NULL DEFAULT '',
	user_weightage   REAL NOT NULL,
	normalized_score REAL NOT NULL,
	weighted_score   REAL NOT NULL,
	computed_at      DATETIME NOT NULL,
	UNIQUE (organization_id, reporting_period, kpi_code)
);

CREATE TABLE IF NOT EXISTS esg_final_scores (
	run_id              TEXT NOT NULL,
	organization_id     INTEGER NOT NULL,
	reporting_period    TEXT NOT NULL,
	environmental_score REAL NOT NULL,
	social_score        REAL NOT NULL,
	governance_score    REAL NOT NULL,
	final_esg_score     REAL NOT NULL,
	config_hash         TEXT NOT NULL DEFAULT '',
	computed_at         DATETIME NOT NULL,
	UNIQUE (organization_id, reporting_period)
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Facts

func (s *SQLiteStore) UpsertFact(ctx context.Context, in model.FactInput) (*model.Fact, error) {
	in, err := model.ValidateSubmission(in)
	if err != nil {
		return nil, err
	}
	return s.writeFact(ctx, in)
}

func (s *SQLiteStore) UpsertComputed(ctx context.Context, orgID int64, period model.Period, field string, value model.Value) (*model.Fact, error) {
	in, err := model.ValidateFact(computedInput(orgID, period, field, value))
	if err != nil {
		return nil, err
	}
	return s.writeFact(ctx, in)
}

func (s *SQLiteStore) writeFact(ctx context.Context, in model.FactInput) (*model.Fact, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert fact: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	createdAt := now
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM esg_submissions
		 WHERE organization_id = ? AND reporting_period = ? AND form_field = ? AND is_current = 1`,
		in.OrganizationID, string(in.Period), in.FieldName,
	).Scan(&createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(err, "sqlite: read current fact %s", in.FieldName)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE esg_submissions SET is_current = 0
		 WHERE organization_id = ? AND reporting_period = ? AND form_field = ? AND is_current = 1`,
		in.OrganizationID, string(in.Period), in.FieldName,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: retire current fact %s", in.FieldName)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO esg_submissions (organization_id, reporting_period, form_field, field_value, provenance, is_kpi, is_current, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		in.OrganizationID, string(in.Period), in.FieldName, string(in.Value), string(in.Provenance), in.IsKPI, createdAt, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert fact %s", in.FieldName)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert fact: commit tx")
	}

	return &model.Fact{
		ID:             id,
		OrganizationID: in.OrganizationID,
		Period:         in.Period,
		FieldName:      in.FieldName,
		Value:          in.Value,
		Provenance:     in.Provenance,
		IsKPI:          in.IsKPI,
		IsCurrent:      true,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}, nil
}

func (s *SQLiteStore) CurrentFacts(ctx context.Context, orgID int64, period model.Period, filter model.FactFilter) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM esg_submissions
		WHERE organization_id = ? AND reporting_period = ? AND is_current = 1`
	args := []any{orgID, string(period)}

	if filter.FieldName != "" {
		query += ` AND form_field = ?`
		args = append(args, filter.FieldName)
	}
	if filter.Provenance != "" {
		query += ` AND provenance = ?`
		args = append(args, string(filter.Provenance))
	}
	if filter.IsKPI != nil {
		query += ` AND is_kpi = ?`
		args = append(args, *filter.IsKPI)
	}
	query += ` ORDER BY form_field`

	return s.queryFacts(ctx, "current facts", query, args...)
}

func (s *SQLiteStore) FactHistory(ctx context.Context, orgID int64, period model.Period, field string) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM esg_submissions WHERE organization_id = ? AND form_field = ?`
	args := []any{orgID, field}
	if !period.IsZero() {
		query += ` AND reporting_period = ?`
		args = append(args, string(period))
	}
	query += ` ORDER BY id DESC`

	return s.queryFacts(ctx, "fact history", query, args...)
}

func (s *SQLiteStore) LatestPeriod(ctx context.Context, orgID int64) (model.Period, error) {
	var p sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(reporting_period) FROM esg_submissions WHERE organization_id = ? AND is_current = 1`,
		orgID,
	).Scan(&p)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: latest period for org %d", orgID)
	}
	if !p.Valid || p.String == "" {
		return "", ErrNotFound
	}
	return model.Period(p.String), nil
}

func (s *SQLiteStore) queryFacts(ctx context.Context, what, query string, args ...any) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", what)
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		var f model.Fact
		var period, value, provenance string
		if err := rows.Scan(&f.ID, &f.OrganizationID, &period, &f.FieldName, &value, &provenance,
			&f.IsKPI, &f.IsCurrent, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		f.Period = model.Period(period)
		f.Value = model.Value(value)
		f.Provenance = model.Provenance(provenance)
		facts = append(facts, f)
	}
	return facts, eris.Wrapf(rows.Err(), "sqlite: %s iterate", what)
}

// Catalog

func (s *SQLiteStore) ListKPIs(ctx context.Context, activeOnly bool) ([]model.KPIDefinition, error) {
	query := `SELECT kpi_code, kpi_description, pillar, unit, normalization_method, framework_reference, status FROM esg_kpis`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY kpi_code`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpis")
	}
	defer rows.Close()

	var kpis []model.KPIDefinition
	for rows.Next() {
		var k model.KPIDefinition
		var pillar, method, status string
		if err := rows.Scan(&k.Code, &k.Description, &pillar, &k.Unit, &method, &k.FrameworkReference, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi")
		}
		k.Pillar = model.Pillar(pillar)
		k.NormalizationMethod = model.NormalizationMethod(method)
		k.Status = model.KPIStatus(status)
		kpis = append(kpis, k)
	}
	return kpis, eris.Wrap(rows.Err(), "sqlite: list kpis iterate")
}

func (s *SQLiteStore) ListMappings(ctx context.Context, filter model.MappingFilter) ([]model.FieldMapping, error) {
	query := `SELECT id, form_field, reporting_period, kpi_code, aggregation_method, is_current, updated_at
		FROM esg_field_mappings WHERE 1=1`
	var args []any

	if filter.FormField != "" {
		query += ` AND form_field = ?`
		args = append(args, filter.FormField)
	}
	if !filter.Period.IsZero() {
		query += ` AND reporting_period = ?`
		args = append(args, string(filter.Period))
	}
	if filter.CurrentOnly {
		query += ` AND is_current = 1`
	}
	query += ` ORDER BY form_field, reporting_period, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	var mappings []model.FieldMapping
	for rows.Next() {
		var m model.FieldMapping
		var period, method string
		if err := rows.Scan(&m.ID, &m.FormField, &period, &m.KPICode, &method, &m.IsCurrent, &m.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		m.Period = model.Period(period)
		m.AggregationMethod = model.AggregationMethod(method)
		mappings = append(mappings, m)
	}
	return mappings, eris.Wrap(rows.Err(), "sqlite: list mappings iterate")
}

func (s *SQLiteStore) ListKPIWeights(ctx context.Context, filter model.WeightFilter) ([]model.KPIWeight, error) {
	query, args := sqliteWeightQuery(`SELECT organization_id, reporting_period, kpi_code, weight, is_current, updated_at FROM esg_kpi_weights`, filter)
	query += ` ORDER BY reporting_period DESC, kpi_code`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpi weights")
	}
	defer rows.Close()

	var weights []model.KPIWeight
	for rows.Next() {
		var w model.KPIWeight
		var period string
		if err := rows.Scan(&w.OrganizationID, &period, &w.KPICode, &w.Weight, &w.IsCurrent, &w.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi weight")
		}
		w.Period = model.Period(period)
		weights = append(weights, w)
	}
	return weights, eris.Wrap(rows.Err(), "sqlite: list kpi weights iterate")
}

func (s *SQLiteStore) ListPillarWeights(ctx context.Context, filter model.WeightFilter) ([]model.PillarWeight, error) {
	query, args := sqliteWeightQuery(`SELECT organization_id, reporting_period, pillar, pillar_weight, is_current, updated_at FROM esg_pillar_weights`, filter)
	query += ` ORDER BY reporting_period DESC, pillar`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pillar weights")
	}
	defer rows.Close()

	var weights []model.PillarWeight
	for rows.Next() {
		var w model.PillarWeight
		var period, pillar string
		if err := rows.Scan(&w.OrganizationID, &period, &pillar, &w.Weight, &w.IsCurrent, &w.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pillar weight")
		}
		w.Period = model.Period(period)
		w.Pillar = model.Pillar(pillar)
		weights = append(weights, w)
	}
	return weights, eris.Wrap(rows.Err(), "sqlite: list pillar weights iterate")
}

func sqliteWeightQuery(base string, filter model.WeightFilter) (string, []any) {
	query := base + ` WHERE organization_id = ?`
	args := []any{filter.OrganizationID}
	if !filter.Period.IsZero() {
		query += ` AND reporting_period = ?`
		args = append(args, string(filter.Period))
	}
	if filter.CurrentOnly {
		query += ` AND is_current = 1`
	}
	return query, args
}

func (s *SQLiteStore) SaveKPIs(ctx context.Context, kpis []model.KPIDefinition) error {
	if len(kpis) == 0 {
		return nil
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save kpis: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, k := range kpis {
		status := k.Status
		if status == "" {
			status = model.KPIStatusActive
		}
		method, _ := model.ParseNormalizationMethod(string(k.NormalizationMethod))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO esg_kpis (kpi_code, kpi_description, pillar, unit, normalization_method, framework_reference, status, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (kpi_code) DO UPDATE SET
			   kpi_description = excluded.kpi_description,
			   pillar = excluded.pillar,
			   unit = excluded.unit,
			   normalization_method = excluded.normalization_method,
			   framework_reference = excluded.framework_reference,
			   status = excluded.status,
			   updated_at = excluded.updated_at`,
			k.Code, k.Description, string(k.Pillar), k.Unit, string(method), k.FrameworkReference, string(status), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: save kpi %s", k.Code)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: save kpis: commit tx")
}

func (s *SQLiteStore) SaveMapping(ctx context.Context, m model.FieldMapping) (*model.FieldMapping, error) {
	method, _ := model.ParseAggregationMethod(string(m.AggregationMethod))
	m.AggregationMethod = method
	m.IsCurrent = true
	m.UpdatedAt = s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: save mapping: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE esg_field_mappings SET is_current = 0 WHERE form_field = ? AND reporting_period = ? AND is_current = 1`,
		m.FormField, string(m.Period),
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: retire mapping %s", m.FormField)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO esg_field_mappings (form_field, reporting_period, kpi_code, aggregation_method, is_current, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		m.FormField, string(m.Period), m.KPICode, string(m.AggregationMethod), m.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert mapping %s", m.FormField)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: save mapping: commit tx")
	}
	return &m, nil
}

func (s *SQLiteStore) ReplaceKPIWeights(ctx context.Context, orgID int64, period model.Period, weights []model.KPIWeight) error {
	now := s.now()
	rows := make([][]any, 0, len(weights))
	for _, w := range weights {
		rows = append(rows, []any{orgID, string(period), w.KPICode, w.Weight, now})
	}
	return s.replaceWeights(ctx, "esg_kpi_weights", "kpi_code, weight", orgID, period, rows)
}

func (s *SQLiteStore) ReplacePillarWeights(ctx context.Context, orgID int64, period model.Period, weights []model.PillarWeight) error {
	now := s.now()
	rows := make([][]any, 0, len(weights))
	for _, w := range weights {
		rows = append(rows, []any{orgID, string(period), string(w.Pillar), w.Weight, now})
	}
	return s.replaceWeights(ctx, "esg_pillar_weights", "pillar, pillar_weight", orgID, period, rows)
}

func (s *SQLiteStore) replaceWeights(ctx context.Context, table, valueCols string, orgID int64, period model.Period, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: replace %s: begin tx", table)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET is_current = 0 WHERE organization_id = ? AND reporting_period = ? AND is_current = 1`, table),
		orgID, string(period),
	); err != nil {
		return eris.Wrapf(err, "sqlite: retire %s", table)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (organization_id, reporting_period, %s, is_current, updated_at) VALUES (?, ?, ?, ?, 1, ?)`, table, valueCols)
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, insert, r...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", table)
		}
	}

	return eris.Wrapf(tx.Commit(), "sqlite: replace %s: commit tx", table)
}

// Scores

func (s *SQLiteStore) ReplaceScores(ctx context.Context, orgID int64, period model.Period, kpis []model.KPIScore, final model.FinalScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace scores: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM esg_kpi_scores WHERE organization_id = ? AND reporting_period = ?`,
		orgID, string(period),
	); err != nil {
		return eris.Wrap(err, "sqlite: clear kpi scores")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM esg_final_scores WHERE organization_id = ? AND reporting_period = ?`,
		orgID, string(period),
	); err != nil {
		return eris.Wrap(err, "sqlite: clear final score")
	}

	for _, k := range kpis {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO esg_kpi_scores (organization_id, reporting_period, kpi_code, pillar, raw_value, user_weightage, normalized_score, weighted_score, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			orgID, string(period), k.KPICode, string(k.Pillar), string(k.RawValue),
			k.Weight, k.NormalizedScore, k.WeightedScore, k.ComputedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert kpi score %s", k.KPICode)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO esg_final_scores (run_id, organization_id, reporting_period, environmental_score, social_score, governance_score, final_esg_score, config_hash, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		final.RunID, orgID, string(period), final.EnvironmentalScore, final.SocialScore,
		final.GovernanceScore, final.FinalESGScore, final.ConfigHash, final.ComputedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert final score")
	}

	return eris.Wrap(tx.Commit(), "sqlite: replace scores: commit tx")
}

func (s *SQLiteStore) GetFinalScore(ctx context.Context, orgID int64, period model.Period) (*model.FinalScore, error) {
	var f model.FinalScore
	var p string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, organization_id, reporting_period, environmental_score, social_score, governance_score, final_esg_score, config_hash, computed_at
		 FROM esg_final_scores WHERE organization_id = ? AND reporting_period = ?`,
		orgID, string(period),
	).Scan(&f.RunID, &f.OrganizationID, &p, &f.EnvironmentalScore, &f.SocialScore,
		&f.GovernanceScore, &f.FinalESGScore, &f.ConfigHash, &f.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get final score for org %d", orgID)
	}
	f.Period = model.Period(p)
	return &f, nil
}

func (s *SQLiteStore) ListKPIScores(ctx context.Context, orgID int64, period model.Period) ([]model.KPIScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT organization_id, reporting_period, kpi_code, pillar, raw_value, user_weightage, normalized_score, weighted_score, computed_at
		 FROM esg_kpi_scores WHERE organization_id = ? AND reporting_period = ? ORDER BY kpi_code`,
		orgID, string(period),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpi scores")
	}
	defer rows.Close()

	var scores []model.KPIScore
	for rows.Next() {
		var k model.KPIScore
		var p, pillar, raw string
		if err := rows.Scan(&k.OrganizationID, &p, &k.KPICode, &pillar, &raw,
			&k.Weight, &k.NormalizedScore, &k.WeightedScore, &k.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi score")
		}
		k.Period = model.Period(p)
		k.Pillar = model.Pillar(pillar)
		k.RawValue = model.Value(raw)
		scores = append(scores, k)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: list kpi scores iterate")
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
