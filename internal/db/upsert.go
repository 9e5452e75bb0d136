package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge inserts rows into t inside tx, overwriting every non-key column of
// rows that collide on key. The batch is staged in a temp table dropped at
// commit, so one statement resolves conflicts for all rows.
func (t Table) Merge(ctx context.Context, tx pgx.Tx, key []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(key) == 0 {
		return 0, eris.Errorf("db: merge into %s: no key columns", t.Name)
	}

	stage := Table{Name: "_stage_" + strings.ReplaceAll(t.Name, ".", "_"), Columns: t.Columns}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.ident().Sanitize(), t.ident().Sanitize(),
	)); err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s: stage", t.Name)
	}
	if _, err := stage.Copy(ctx, tx, rows); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, t.mergeSQL(stage, key))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s", t.Name)
	}
	return tag.RowsAffected(), nil
}

func (t Table) mergeSQL(stage Table, key []string) string {
	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}
	var set []string
	for _, c := range t.Columns {
		if isKey[c] {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		set = append(set, q+" = EXCLUDED."+q)
	}

	action := "DO NOTHING"
	if len(set) > 0 {
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	cols := quoted(t.Columns)
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		t.ident().Sanitize(), cols, cols, stage.ident().Sanitize(), quoted(key), action)
}
