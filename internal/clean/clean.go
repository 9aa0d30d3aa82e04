// Package clean merges staged interim files into one table, imputes missing
// target values by indicator mean, and fills the remaining key gaps.
package clean

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/metrics"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Options configures a cleaning run.
type Options struct {
	InterimDir string
	Output     string
}

// Result describes a completed cleaning run.
type Result struct {
	Files   int
	Skipped []string
	Rows    int
	Imputed int
	Output  string
}

// Stats counts what Transform changed.
type Stats struct {
	Imputed      int
	UnknownKeys  int
	FilledYears  int
	NonNumeric   int
	FallbackYear int
}

// Run loads every interim file, transforms the merged table, and replaces
// the cleaned dataset. Nothing is written unless the whole transform succeeds.
func Run(ctx context.Context, opts Options, rec *metrics.Recorder) (*Result, error) {
	log := zap.L().With(zap.String("component", "clean"))
	start := time.Now()

	merged, files, skipped, err := LoadInterims(opts.InterimDir)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "clean: cancelled")
	}

	cleaned, stats := Transform(merged)

	if err := tabular.WriteFileAtomic(opts.Output, cleaned); err != nil {
		return nil, eris.Wrap(err, "clean: write cleaned dataset")
	}

	rec.Cleaned(cleaned.Len(), stats.Imputed)
	rec.StageFinished("clean", time.Since(start))
	log.Info("cleaned dataset written",
		zap.String("path", opts.Output),
		zap.Int("files", files),
		zap.Int("rows", cleaned.Len()),
		zap.Int("imputed", stats.Imputed),
		zap.Int("unknown_keys", stats.UnknownKeys),
		zap.Int("filled_years", stats.FilledYears),
	)

	return &Result{
		Files:   files,
		Skipped: skipped,
		Rows:    cleaned.Len(),
		Imputed: stats.Imputed,
		Output:  opts.Output,
	}, nil
}

// LoadInterims reads every *.csv under dir (recursively, in path order) and
// concatenates them. Unreadable files are skipped with a warning. No
// readable rows at all is an EmptyDataset error.
func LoadInterims(dir string) (*tabular.Table, int, []string, error) {
	const op = "clean: load interims"
	log := zap.L().With(zap.String("component", "clean"))

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn("skipping unreadable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") && !strings.HasPrefix(d.Name(), ".") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil, eris.Wrapf(err, "clean: walk %s", dir)
	}
	sort.Strings(paths)

	var tables []*tabular.Table
	var skipped []string
	for _, p := range paths {
		t, err := tabular.ReadFile(p)
		if err != nil {
			log.Warn("skipping unreadable interim file", zap.String("path", p), zap.Error(err))
			skipped = append(skipped, p)
			continue
		}
		tables = append(tables, t)
	}

	if len(tables) == 0 {
		return nil, 0, skipped, pipeline.Errorf(pipeline.KindEmptyDataset, op, "no interim csv files found in %s; run ingest first", dir)
	}
	merged := tabular.Concat(tables...)
	if merged.Len() == 0 {
		return nil, 0, skipped, pipeline.Errorf(pipeline.KindEmptyDataset, op, "interim files in %s contain no rows", dir)
	}
	return merged, len(tables), skipped, nil
}

// Transform normalizes column presence, coerces the target to a number,
// imputes missing targets with their indicator group mean, and then fills
// missing keys with sentinels. Group means are computed before the
// sentinel fill, so rows without an indicator never join a group.
func Transform(in *tabular.Table) (*tabular.Table, Stats) {
	t := tabular.New(in.Columns...)
	for _, row := range in.Rows {
		t.Append(row)
	}
	var stats Stats

	t.EnsureColumn(schema.ColYear, "")
	t.EnsureColumn(schema.ColCountry, "")
	t.EnsureColumn(schema.ColIndicatorCode, "")

	source := schema.ColTargetValue
	if !t.Has(schema.ColTargetValue) {
		source = schema.ColValue
		t.EnsureColumn(schema.ColTargetValue, "")
	}

	// Coerce the target. Non-numeric cells become missing.
	targets := make([]*float64, t.Len())
	for i := range t.Rows {
		raw := strings.TrimSpace(t.Get(i, source))
		if v, ok := schema.ParseFloat(raw); ok {
			targets[i] = &v
		} else if raw != "" {
			stats.NonNumeric++
		}
	}

	// Aggregate per indicator, then join the means back onto missing rows.
	means := GroupMeans(t.Column(schema.ColIndicatorCode), targets)
	for i := range targets {
		if targets[i] != nil {
			continue
		}
		key := strings.TrimSpace(t.Get(i, schema.ColIndicatorCode))
		if m, ok := means[key]; ok && key != "" {
			v := m
			targets[i] = &v
			stats.Imputed++
		}
	}
	for i, v := range targets {
		t.Set(i, schema.ColTargetValue, schema.FormatOptionalFloat(v))
	}

	// Categorical sentinels.
	for i := range t.Rows {
		for _, col := range []string{schema.ColCountry, schema.ColIndicatorCode} {
			if strings.TrimSpace(t.Get(i, col)) == "" {
				t.Set(i, col, schema.Unknown)
				stats.UnknownKeys++
			}
		}
	}

	// Years: normalize to integers, fill gaps with the table minimum (or 0).
	years := make([]*int, t.Len())
	minYear := 0
	seen := false
	for i := range t.Rows {
		if y, ok := schema.ParseYear(t.Get(i, schema.ColYear)); ok {
			years[i] = &y
			if !seen || y < minYear {
				minYear = y
				seen = true
			}
		}
	}
	stats.FallbackYear = minYear
	for i, y := range years {
		if y == nil {
			t.Set(i, schema.ColYear, strconv.Itoa(minYear))
			stats.FilledYears++
			continue
		}
		t.Set(i, schema.ColYear, strconv.Itoa(*y))
	}

	return t, stats
}

// GroupMeans returns the arithmetic mean of the non-missing values per
// non-blank key. Groups with no values are absent from the result.
func GroupMeans(keys []string, values []*float64) map[string]float64 {
	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[string]*acc)
	for i, v := range values {
		if v == nil || i >= len(keys) {
			continue
		}
		key := strings.TrimSpace(keys[i])
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.sum += *v
		g.n++
	}
	means := make(map[string]float64, len(groups))
	for k, g := range groups {
		means[k] = g.sum / float64(g.n)
	}
	return means
}
