package ledger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Tee writes to a primary ledger and best-effort to mirrors. The primary is
// authoritative: its errors are returned, mirror errors are only logged.
type Tee struct {
	primary Ledger
	mirrors []Ledger
}

// NewTee creates a tee over primary and any mirrors.
func NewTee(primary Ledger, mirrors ...Ledger) *Tee {
	return &Tee{primary: primary, mirrors: mirrors}
}

// Append writes e to the primary, then to each mirror.
func (t *Tee) Append(ctx context.Context, e Entry) error {
	if err := t.primary.Append(ctx, e); err != nil {
		return err
	}
	for _, m := range t.mirrors {
		if err := m.Append(ctx, e); err != nil {
			zap.L().Warn("ledger mirror append failed",
				zap.String("component", "ledger.tee"),
				zap.String("original_path", e.OriginalPath),
				zap.Error(err),
			)
		}
	}
	return nil
}

// List reads from the primary.
func (t *Tee) List(ctx context.Context) ([]Entry, error) {
	return t.primary.List(ctx)
}

// SyncResult describes one Sync call.
type SyncResult struct {
	Primary int   // entries in the primary ledger
	Before  int64 // entries the mirror held before syncing
	Copied  int64 // entries backfilled into the mirror
}

// Sync copies every primary entry the mirror is missing. Both sides are
// append-only, so an empty mirror takes the whole primary and a mirror with
// as many rows as the primary is already current. Otherwise entries are
// matched by identity, which also repairs a mirror that was enabled after
// the primary already had history and then received rows through a Tee.
func Sync(ctx context.Context, primary Ledger, mirror Mirror) (SyncResult, error) {
	var res SyncResult
	entries, err := primary.List(ctx)
	if err != nil {
		return res, err
	}
	res.Primary = len(entries)

	res.Before, err = mirror.Count(ctx)
	if err != nil {
		return res, err
	}
	if res.Before >= int64(len(entries)) {
		return res, nil
	}

	missing := entries
	if res.Before > 0 {
		have, err := mirror.List(ctx)
		if err != nil {
			return res, err
		}
		missing = Missing(entries, have)
	}
	if len(missing) == 0 {
		return res, nil
	}

	res.Copied, err = mirror.Backfill(ctx, missing)
	return res, err
}

// Missing returns the entries of want that have no counterpart in have,
// in want order. Duplicates are matched one for one.
func Missing(want, have []Entry) []Entry {
	seen := make(map[string]int, len(have))
	for _, e := range have {
		seen[identity(e)]++
	}
	var out []Entry
	for _, e := range want {
		k := identity(e)
		if seen[k] > 0 {
			seen[k]--
			continue
		}
		out = append(out, e)
	}
	return out
}

// identity keys an entry across backends. Timestamps are compared at second
// precision because Postgres keeps microseconds and the file keeps nanoseconds.
func identity(e Entry) string {
	return strings.Join([]string{
		e.OriginalPath,
		e.IngestedFile,
		string(e.Status),
		e.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339),
	}, "\x00")
}
