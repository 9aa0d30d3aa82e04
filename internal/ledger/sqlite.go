package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteLedger mirrors the ledger into an embedded database for ad-hoc
// queries. Triggers reject UPDATE and DELETE so the mirror is append-only too.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS provenance (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	id                  TEXT NOT NULL UNIQUE,
	ingested_file       TEXT NOT NULL,
	source              TEXT NOT NULL,
	year_min            INTEGER,
	year_max            INTEGER,
	countries           TEXT NOT NULL,
	indicators          TEXT NOT NULL,
	status              TEXT NOT NULL,
	ingested_at         TEXT NOT NULL,
	reliability_summary TEXT NOT NULL,
	original_path       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_provenance_status ON provenance(status);
CREATE INDEX IF NOT EXISTS idx_provenance_original_path ON provenance(original_path);

CREATE TRIGGER IF NOT EXISTS provenance_no_update BEFORE UPDATE ON provenance
BEGIN
	SELECT RAISE(ABORT, 'provenance ledger is append-only');
END;

CREATE TRIGGER IF NOT EXISTS provenance_no_delete BEFORE DELETE ON provenance
BEGIN
	SELECT RAISE(ABORT, 'provenance ledger is append-only');
END;
`

// Migrate creates the ledger table and its guard triggers.
func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close releases the database handle.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

const sqliteInsert = `INSERT INTO provenance
	(id, ingested_file, source, year_min, year_max, countries, indicators, status, ingested_at, reliability_summary, original_path)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteAppend(ctx context.Context, x execer, e Entry) error {
	_, err := x.ExecContext(ctx, sqliteInsert,
		uuid.New().String(),
		e.IngestedFile,
		e.Source,
		nullableInt(e.YearMin),
		nullableInt(e.YearMax),
		e.Countries,
		e.Indicators,
		string(e.Status),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.ReliabilitySummary,
		e.OriginalPath,
	)
	return eris.Wrapf(err, "sqlite: insert entry for %s", e.OriginalPath)
}

// Append inserts one entry.
func (s *SQLiteLedger) Append(ctx context.Context, e Entry) error {
	return sqliteAppend(ctx, s.db, e)
}

// Backfill inserts entries in one transaction.
func (s *SQLiteLedger) Backfill(ctx context.Context, entries []Entry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin backfill")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range entries {
		if err := sqliteAppend(ctx, tx, e); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit backfill")
	}
	return int64(len(entries)), nil
}

// Count returns the number of mirrored entries.
func (s *SQLiteLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM provenance`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count entries")
}

// List returns entries in insertion order.
func (s *SQLiteLedger) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ingested_file, source, year_min, year_max, countries, indicators, status, ingested_at, reliability_summary, original_path
		 FROM provenance ORDER BY seq`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entries")
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var (
			e                Entry
			yearMin, yearMax sql.NullInt64
			status, ts       string
		)
		if err := rows.Scan(&e.IngestedFile, &e.Source, &yearMin, &yearMax, &e.Countries, &e.Indicators, &status, &ts, &e.ReliabilitySummary, &e.OriginalPath); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entry")
		}
		e.Status = Status(status)
		e.YearMin = intFromNull(yearMin)
		e.YearMax = intFromNull(yearMax)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse timestamp %q", ts)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list entries iterate")
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
