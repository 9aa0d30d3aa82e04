package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/sells-group/indicator-pipeline/internal/clean"
	"github.com/sells-group/indicator-pipeline/internal/features"
	"github.com/sells-group/indicator-pipeline/internal/ingest"
	"github.com/sells-group/indicator-pipeline/internal/ledger"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func printIngestReport(w io.Writer, r *ingest.Report) {
	if r.Seeded {
		cyan.Fprintf(w, "→ seeded sample drop %s\n", ingest.SeedFileName) //nolint:errcheck
	}
	if r.Empty() {
		yellow.Fprintf(w, "No files found in %s [%s].\n", r.DropDir, pipeline.KindOf(r.Err())) //nolint:errcheck
		return
	}
	for _, e := range r.Ingested {
		green.Fprintf(w, "✓ %s -> %s\n", filepath.Base(e.OriginalPath), e.IngestedFile) //nolint:errcheck
	}
	for _, f := range r.Failed {
		red.Fprintf(w, "✗ %s [%s]: %v\n", filepath.Base(f.Path), f.Kind, f.Err) //nolint:errcheck
	}
	fmt.Fprintf(w, "Discovered %d, ingested %d, failed %d.\n", r.Discovered, len(r.Ingested), len(r.Failed))
}

func printCleanResult(w io.Writer, r *clean.Result) {
	green.Fprintf(w, "✓ cleaned %d rows from %d interim files -> %s\n", r.Rows, r.Files, r.Output) //nolint:errcheck
	if r.Imputed > 0 {
		fmt.Fprintf(w, "  imputed %d missing target values\n", r.Imputed)
	}
	for _, s := range r.Skipped {
		yellow.Fprintf(w, "  skipped unreadable %s\n", s) //nolint:errcheck
	}
}

func printFeatureResult(w io.Writer, r *features.Result, opts features.Options) {
	green.Fprintf(w, "✓ features: %d rows (%d high risk) -> %s\n", r.Rows, r.High, opts.Features) //nolint:errcheck
	fmt.Fprintf(w, "  long table: %d rows -> %s\n", r.LongRows, opts.FeaturesLong)
}

func printWritten(w io.Writer, paths []string) {
	for _, p := range paths {
		green.Fprintf(w, "✓ wrote %s\n", p) //nolint:errcheck
	}
}

func printSyncResult(w io.Writer, res ledger.SyncResult, source, mirror string) {
	switch {
	case res.Primary == 0:
		yellow.Fprintf(w, "%s has no entries, nothing to copy\n", source) //nolint:errcheck
	case res.Copied == 0:
		fmt.Fprintf(w, "%s mirror is up to date (%d entries)\n", mirror, res.Before)
	default:
		green.Fprintf(w, "✓ copied %d entries to %s mirror (%d/%d now mirrored)\n", res.Copied, mirror, res.Before+res.Copied, res.Primary) //nolint:errcheck
	}
}

func printStepResults(w io.Writer, results []pipeline.StepResult) {
	for _, r := range results {
		elapsed := r.Elapsed.Round(time.Millisecond)
		if r.Err != nil {
			red.Fprintf(w, "[ERROR] %s failed after %s\n", r.Name, elapsed) //nolint:errcheck
			continue
		}
		green.Fprintf(w, "[OK] %s completed in %s\n", r.Name, elapsed) //nolint:errcheck
	}
}

func formatLedger(w io.Writer, entries []ledger.Entry) error {
	table := tablewriter.NewWriter(w)
	table.Header("Timestamp", "Status", "Ingested File", "Source", "Years", "Countries", "Indicators", "Original Path")

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Status),
			e.IngestedFile,
			e.Source,
			yearRange(e.YearMin, e.YearMax),
			e.Countries,
			e.Indicators,
			e.OriginalPath,
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func yearRange(lo, hi *int) string {
	switch {
	case lo == nil && hi == nil:
		return ""
	case lo == nil:
		return strconv.Itoa(*hi)
	case hi == nil || *lo == *hi:
		return strconv.Itoa(*lo)
	}
	return strconv.Itoa(*lo) + "-" + strconv.Itoa(*hi)
}
