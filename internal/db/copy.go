package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyInto bulk-loads rows into a (optionally schema-qualified) table with the
// COPY protocol. An empty schema targets the search path.
func CopyInto(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}

	n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", ident.Sanitize())
	}
	return n, nil
}
