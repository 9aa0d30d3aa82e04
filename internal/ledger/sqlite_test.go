package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() }) //nolint:errcheck
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestSQLite_AppendAndList(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()
	ts := time.Date(2024, 2, 3, 4, 5, 6, 789, time.UTC)

	require.NoError(t, l.Append(ctx, sampleEntry("first", ts)))
	require.NoError(t, l.Append(ctx, Entry{Status: StatusFailed, Timestamp: ts, OriginalPath: "bad.csv"}))

	entries, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, sampleEntry("first", ts), entries[0])
	assert.Equal(t, StatusFailed, entries[1].Status)
	assert.Nil(t, entries[1].YearMin)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLite_RejectsMutation(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Append(ctx, sampleEntry("a", time.Now())))

	_, err := l.db.ExecContext(ctx, `UPDATE provenance SET status = 'FAILED'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = l.db.ExecContext(ctx, `DELETE FROM provenance`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_Backfill(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	n, err := l.Backfill(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = l.Backfill(ctx, []Entry{sampleEntry("a", ts), sampleEntry("b", ts)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "data/raw/placeholders/a.csv", entries[0].OriginalPath)
	assert.Equal(t, "data/raw/placeholders/b.csv", entries[1].OriginalPath)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	l := newTestSQLiteLedger(t)
	require.NoError(t, l.Migrate(context.Background()))
}
