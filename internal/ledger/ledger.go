// Package ledger is the append-only provenance record of every ingestion
// attempt. Entries are never updated or deleted once written.
package ledger

import (
	"context"
	"time"
)

// Status is the outcome of one ingestion attempt.
type Status string

const (
	StatusIngested Status = "INGESTED"
	StatusFailed   Status = "FAILED"
)

// Columns is the ledger file header, in order.
var Columns = []string{
	"ingested_file",
	"source",
	"year_min",
	"year_max",
	"countries",
	"indicators",
	"status",
	"timestamp",
	"reliability_summary",
	"original_path",
}

// Entry describes one ingested (or failed) raw file.
type Entry struct {
	IngestedFile       string    `csv:"ingested_file" json:"ingested_file"`
	Source             string    `csv:"source" json:"source"`
	YearMin            *int      `csv:"year_min" json:"year_min"`
	YearMax            *int      `csv:"year_max" json:"year_max"`
	Countries          string    `csv:"countries" json:"countries"`
	Indicators         string    `csv:"indicators" json:"indicators"`
	Status             Status    `csv:"status" json:"status"`
	Timestamp          time.Time `csv:"timestamp" json:"timestamp"`
	ReliabilitySummary string    `csv:"reliability_summary" json:"reliability_summary"`
	OriginalPath       string    `csv:"original_path" json:"original_path"`
}

// Ledger appends and lists provenance entries.
type Ledger interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
}

// Mirror is a secondary ledger backend that can be seeded from the
// authoritative file.
type Mirror interface {
	Ledger
	Migrate(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Backfill(ctx context.Context, entries []Entry) (int64, error)
	Close() error
}

// Filter returns the entries whose status matches. An empty status matches all.
func Filter(entries []Entry, status Status) []Entry {
	if status == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
