package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Table is a write target: a possibly schema-qualified name and the column
// order every row passed to it follows.
type Table struct {
	Name    string
	Columns []string
}

func (t Table) ident() pgx.Identifier {
	if schema, name, ok := strings.Cut(t.Name, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{t.Name}
}

// Copy appends rows to t over the COPY protocol. Pass a pgx.Tx to make the
// write part of a larger transaction.
func (t Table) Copy(ctx context.Context, c Copier, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(t.Columns) == 0 {
		return 0, eris.Errorf("db: copy into %s: no columns", t.Name)
	}

	n, err := c.CopyFrom(ctx, t.ident(), t.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", t.Name)
	}
	return n, nil
}

func quoted(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(out, ", ")
}
