// Package ingest discovers raw indicator drops, archives them, stages a
// normalized copy, and records each attempt in the provenance ledger.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/archive"
	"github.com/sells-group/indicator-pipeline/internal/config"
	"github.com/sells-group/indicator-pipeline/internal/ledger"
	"github.com/sells-group/indicator-pipeline/internal/metrics"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Options configures an Engine.
type Options struct {
	DropDir        string
	InterimDir     string
	SeedSample     bool
	RecordFailures bool
}

// Engine runs the per-file ingestion protocol over a drop directory.
type Engine struct {
	opts    Options
	store   *archive.Store
	ledger  ledger.Ledger
	gov     *config.Governance
	metrics *metrics.Recorder
	now     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for interim names and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGovernance enables coverage warnings against the governed scope.
func WithGovernance(g *config.Governance) Option {
	return func(e *Engine) { e.gov = g }
}

// WithMetrics records per-file outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an ingestion engine.
func NewEngine(opts Options, store *archive.Store, l ledger.Ledger, options ...Option) *Engine {
	e := &Engine{
		opts:   opts,
		store:  store,
		ledger: l,
		now:    time.Now,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// FileFailure is one file that could not be ingested.
type FileFailure struct {
	Path string
	Kind pipeline.Kind
	Err  error
}

// Report summarizes one engine run.
type Report struct {
	DropDir    string
	Seeded     bool
	Discovered int
	Ingested   []ledger.Entry
	Failed     []FileFailure
}

// Empty reports whether the drop directory held nothing to ingest.
func (r *Report) Empty() bool {
	return r.Discovered == 0
}

// Err returns a DiscoveryEmpty error when the run found nothing to ingest.
// It never means the run failed; ExitCode maps it to success.
func (r *Report) Err() error {
	if !r.Empty() {
		return nil
	}
	return pipeline.Errorf(pipeline.KindDiscoveryEmpty, "ingest: discover", "no supported files in %s", r.DropDir)
}

// Discover lists supported files directly under dir in lexicographic name
// order. A missing directory yields no files.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: list drop dir %s", dir)
	}

	var files []string
	for _, ent := range entries {
		if !ent.Type().IsRegular() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		if tabular.Supported(ent.Name()) {
			files = append(files, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	})
	return files, nil
}

// Run seeds the drop directory if configured, then ingests every discovered
// file. A failing file is logged and reported but never aborts the batch;
// only setup errors and cancellation are returned.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"))
	report := &Report{DropDir: e.opts.DropDir}
	start := time.Now()
	defer func() { e.metrics.StageFinished("ingest", time.Since(start)) }()

	if err := os.MkdirAll(e.opts.DropDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ingest: create drop dir %s", e.opts.DropDir)
	}

	if e.opts.SeedSample {
		seeded, err := Seed(e.opts.DropDir)
		if err != nil {
			return nil, err
		}
		report.Seeded = seeded
	}

	files, err := Discover(e.opts.DropDir)
	if err != nil {
		return nil, err
	}
	report.Discovered = len(files)

	if len(files) == 0 {
		log.Info("no files in drop directory",
			zap.String("dir", e.opts.DropDir),
			zap.String("kind", string(pipeline.KindDiscoveryEmpty)),
		)
		return report, nil
	}

	log.Info("discovered files", zap.Int("count", len(files)))

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "ingest: run cancelled")
		}

		entry, err := e.IngestFile(ctx, path)
		if err != nil {
			kind := pipeline.KindOf(err)
			report.Failed = append(report.Failed, FileFailure{Path: path, Kind: kind, Err: err})
			e.metrics.FileFailed(string(kind))
			continue
		}
		report.Ingested = append(report.Ingested, entry)
	}

	log.Info("ingestion run complete",
		zap.Int("discovered", report.Discovered),
		zap.Int("ingested", len(report.Ingested)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// IngestFile runs parse, archive, summarize, stage, and ledger append for
// one file. Every returned error is a *pipeline.Error. When failures are recorded, a
// FAILED entry is appended before returning.
func (e *Engine) IngestFile(ctx context.Context, path string) (ledger.Entry, error) {
	log := zap.L().With(zap.String("component", "ingest.engine"), zap.String("file", path))
	log.Info("ingesting file")

	entry := ledger.Entry{OriginalPath: path}
	fail := func(kind pipeline.Kind, err error) (ledger.Entry, error) {
		perr := pipeline.NewError(kind, "ingest: "+filepath.Base(path), err)
		log.Error("ingestion failed", zap.String("kind", string(kind)), zap.Error(err))
		if e.opts.RecordFailures {
			entry.Status = ledger.StatusFailed
			entry.Timestamp = e.now().UTC()
			if lerr := e.ledger.Append(ctx, entry); lerr != nil {
				log.Error("failed to record ingestion failure", zap.Error(lerr))
			}
		}
		return ledger.Entry{}, perr
	}

	table, err := tabular.ReadFile(path)
	if err != nil {
		if errors.Is(err, tabular.ErrUnsupportedFormat) {
			return fail(pipeline.KindUnsupported, err)
		}
		return fail(pipeline.KindParse, err)
	}

	// The raw bytes are archived before anything is derived from the table
	// so a file that fails summarizing is still recoverable.
	archived, err := e.store.Archive(path)
	if err != nil {
		return fail(pipeline.KindUnknown, err)
	}

	summary, err := Summarize(table)
	if err != nil {
		return fail(pipeline.KindParse, err)
	}
	entry.Source = summary.Source
	entry.YearMin = summary.YearMin
	entry.YearMax = summary.YearMax
	entry.Countries = joinSet(summary.Countries)
	entry.Indicators = joinSet(summary.Indicators)
	entry.ReliabilitySummary = joinSet(summary.Reliability)

	if missing := schema.MissingColumns(table.Columns); len(missing) > 0 {
		log.Warn("file is missing required columns", zap.Strings("missing", missing))
	}
	e.warnCoverage(log, summary)

	interim, err := e.stage(table, path)
	if err != nil {
		return fail(pipeline.KindUnknown, err)
	}

	entry.IngestedFile = filepath.Base(interim)
	entry.Status = ledger.StatusIngested
	entry.Timestamp = e.now().UTC()
	if err := e.ledger.Append(ctx, entry); err != nil {
		// An interim file without a ledger entry would still be merged by clean.
		if rerr := os.Remove(interim); rerr != nil {
			log.Warn("failed to remove unrecorded interim file", zap.String("interim", interim), zap.Error(rerr))
		}
		log.Error("ingestion failed", zap.String("kind", string(pipeline.KindUnknown)), zap.Error(err))
		return ledger.Entry{}, pipeline.NewError(pipeline.KindUnknown, "ingest: "+filepath.Base(path), err)
	}

	e.metrics.FileIngested(table.Len())
	log.Info("ingested file",
		zap.String("archived", filepath.Base(archived)),
		zap.String("interim", entry.IngestedFile),
		zap.Int("rows", table.Len()),
	)
	return entry, nil
}

// stage writes the parsed table as ingested_{stem}_{timestamp}.csv.
func (e *Engine) stage(t *tabular.Table, original string) (string, error) {
	base := filepath.Base(original)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	f, path, err := archive.CreateUnique(e.opts.InterimDir, "ingested_"+stem+"_"+archive.Timestamp(e.now()), ".csv")
	if err != nil {
		return "", eris.Wrap(err, "ingest: create interim file")
	}
	if err := tabular.WriteCSV(f, t); err != nil {
		f.Close() //nolint:errcheck
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "ingest: write interim %s", path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "ingest: close interim %s", path)
	}
	return path, nil
}

func (e *Engine) warnCoverage(log *zap.Logger, s Summary) {
	if e.gov == nil {
		return
	}
	var countries, indicators []string
	for _, c := range s.Countries {
		if !e.gov.HasCountry(c) {
			countries = append(countries, c)
		}
	}
	for _, ind := range s.Indicators {
		if !e.gov.HasIndicator(ind) {
			indicators = append(indicators, ind)
		}
	}
	if len(countries) > 0 {
		log.Warn("countries outside governed scope", zap.Strings("countries", countries))
	}
	if len(indicators) > 0 {
		log.Warn("indicators outside governed scope", zap.Strings("indicators", indicators))
	}
}
