package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/indicator-pipeline/internal/db"
)

// PostgresLedger mirrors the ledger into a shared Postgres table so other
// teams can query lineage without reading the file.
type PostgresLedger struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres wraps an existing pool. closeFn may be nil.
func NewPostgres(pool db.Pool, closeFn func()) *PostgresLedger {
	return &PostgresLedger{pool: pool, closeFn: closeFn}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS provenance_ledger (
	seq                 BIGSERIAL PRIMARY KEY,
	id                  UUID NOT NULL UNIQUE,
	ingested_file       TEXT NOT NULL,
	source              TEXT NOT NULL,
	year_min            INTEGER,
	year_max            INTEGER,
	countries           TEXT NOT NULL,
	indicators          TEXT NOT NULL,
	status              TEXT NOT NULL,
	ingested_at         TIMESTAMPTZ NOT NULL,
	reliability_summary TEXT NOT NULL,
	original_path       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_provenance_ledger_status ON provenance_ledger(status)`

var postgresColumns = []string{
	"id", "ingested_file", "source", "year_min", "year_max", "countries",
	"indicators", "status", "ingested_at", "reliability_summary", "original_path",
}

// Migrate creates the mirror table.
func (p *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate ledger")
}

// Close releases the pool when this ledger owns it.
func (p *PostgresLedger) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

func postgresRow(e Entry) []any {
	return []any{
		uuid.New(),
		e.IngestedFile,
		e.Source,
		nullableInt(e.YearMin),
		nullableInt(e.YearMax),
		e.Countries,
		e.Indicators,
		string(e.Status),
		e.Timestamp.UTC(),
		e.ReliabilitySummary,
		e.OriginalPath,
	}
}

// Append inserts one entry.
func (p *PostgresLedger) Append(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO provenance_ledger
		 (id, ingested_file, source, year_min, year_max, countries, indicators, status, ingested_at, reliability_summary, original_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		postgresRow(e)...,
	)
	return eris.Wrapf(err, "postgres: insert entry for %s", e.OriginalPath)
}

// Backfill bulk-loads entries with COPY.
func (p *PostgresLedger) Backfill(ctx context.Context, entries []Entry) (int64, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = postgresRow(e)
	}
	return db.CopyInto(ctx, p.pool, "", "provenance_ledger", postgresColumns, rows)
}

// Count returns the number of mirrored entries.
func (p *PostgresLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM provenance_ledger`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count entries")
}

// List returns entries in insertion order.
func (p *PostgresLedger) List(ctx context.Context) ([]Entry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT ingested_file, source, year_min, year_max, countries, indicators, status, ingested_at, reliability_summary, original_path
		 FROM provenance_ledger ORDER BY seq`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.IngestedFile, &e.Source, &e.YearMin, &e.YearMax, &e.Countries, &e.Indicators, &status, &e.Timestamp, &e.ReliabilitySummary, &e.OriginalPath); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entry")
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list entries iterate")
}
