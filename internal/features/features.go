// Package features derives year-over-year change and risk level from the
// cleaned dataset and writes wide and long feature tables.
package features

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/indicator-pipeline/internal/clean"
	"github.com/sells-group/indicator-pipeline/internal/metrics"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Risk levels.
const (
	RiskHigh = "high"
	RiskLow  = "low"
)

// LongFeatures are the columns melted into the long table, in order.
var LongFeatures = []string{schema.ColTargetValue, schema.ColYoYChange}

// Options configures a feature run.
type Options struct {
	Cleaned      string
	Features     string
	FeaturesLong string
}

// Result describes a completed feature run.
type Result struct {
	Rows     int
	LongRows int
	High     int
}

// Observation is one row of the feature table in typed form.
type Observation struct {
	Country       string
	IndicatorCode string
	Year          *int
	TargetValue   *float64
	YoYChange     *float64
	RiskLevel     string

	row int
}

// Run reads the cleaned dataset, derives features, and writes both outputs.
func Run(ctx context.Context, opts Options, rec *metrics.Recorder) (*Result, error) {
	log := zap.L().With(zap.String("component", "features"))
	start := time.Now()

	in, err := Load(opts.Cleaned)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "features: cancelled")
	}

	wide, obs := Derive(in)
	long := Melt(wide)

	if err := tabular.WriteFileAtomic(opts.Features, wide); err != nil {
		return nil, eris.Wrap(err, "features: write wide table")
	}
	if err := tabular.WriteFileAtomic(opts.FeaturesLong, long); err != nil {
		return nil, eris.Wrap(err, "features: write long table")
	}

	res := &Result{Rows: wide.Len(), LongRows: long.Len()}
	for _, o := range obs {
		if o.RiskLevel == RiskHigh {
			res.High++
		}
	}

	rec.FeaturesDerived(wide.Len())
	rec.StageFinished("features", time.Since(start))
	log.Info("features written",
		zap.String("wide", opts.Features),
		zap.String("long", opts.FeaturesLong),
		zap.Int("rows", res.Rows),
		zap.Int("high_risk", res.High),
	)
	return res, nil
}

// Load reads the cleaned dataset and resolves its target column. A missing
// file is a MissingUpstreamArtifact error; a table with neither target_value
// nor value is a MissingTargetColumn error.
func Load(path string) (*tabular.Table, error) {
	const op = "features: load cleaned"
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, pipeline.Errorf(pipeline.KindMissingArtifact, op, "cleaned dataset not found at %s; run clean first", path)
	}
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "features: read %s", path)
	}
	if !t.Has(schema.ColTargetValue) {
		if !t.Has(schema.ColValue) {
			return nil, pipeline.Errorf(pipeline.KindMissingTarget, op, "%s has no %s or %s column", path, schema.ColTargetValue, schema.ColValue)
		}
		t.Rename(schema.ColValue, schema.ColTargetValue)
	}
	return t, nil
}

// Harmonize upper-cases the country and indicator keys in place.
func Harmonize(t *tabular.Table) {
	upper := cases.Upper(language.Und)
	for _, col := range []string{schema.ColCountry, schema.ColIndicatorCode} {
		if !t.Has(col) {
			continue
		}
		for i := range t.Rows {
			t.Set(i, col, upper.String(strings.TrimSpace(t.Get(i, col))))
		}
	}
}

// Derive harmonizes keys, stably sorts by (country, indicator_code, year),
// and appends yoy_change and risk_level. It returns the wide table and the
// typed observations in the same order.
func Derive(in *tabular.Table) (*tabular.Table, []Observation) {
	t := tabular.Concat(in)
	for _, col := range []string{schema.ColCountry, schema.ColIndicatorCode, schema.ColYear, schema.ColTargetValue} {
		t.EnsureColumn(col, "")
	}
	Harmonize(t)

	obs := make([]Observation, t.Len())
	for i := range t.Rows {
		o := Observation{
			Country:       t.Get(i, schema.ColCountry),
			IndicatorCode: t.Get(i, schema.ColIndicatorCode),
			row:           i,
		}
		if y, ok := schema.ParseYear(t.Get(i, schema.ColYear)); ok {
			o.Year = &y
		}
		if v, ok := schema.ParseFloat(t.Get(i, schema.ColTargetValue)); ok {
			o.TargetValue = &v
		}
		obs[i] = o
	}

	SortObservations(obs)
	YoYChange(obs)
	ClassifyRisk(obs)

	out := tabular.New(t.Columns...)
	out.EnsureColumn(schema.ColYoYChange, "")
	out.EnsureColumn(schema.ColRiskLevel, "")
	for i := range obs {
		out.Append(t.Rows[obs[i].row])
		out.Set(i, schema.ColYear, schema.FormatOptionalYear(obs[i].Year))
		out.Set(i, schema.ColYoYChange, schema.FormatOptionalFloat(obs[i].YoYChange))
		out.Set(i, schema.ColRiskLevel, obs[i].RiskLevel)
		obs[i].row = i
	}
	return out, obs
}

// SortObservations orders by country, indicator, then year ascending with
// missing years last. Equal keys keep their input order.
func SortObservations(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.IndicatorCode != b.IndicatorCode {
			return a.IndicatorCode < b.IndicatorCode
		}
		switch {
		case a.Year == nil:
			return false
		case b.Year == nil:
			return true
		}
		return *a.Year < *b.Year
	})
}

// YoYChange sets the percent change against the previous observation of the
// same (country, indicator) group. obs must already be sorted. The first row
// of a group, and any row whose predecessor is missing or zero, gets nil.
func YoYChange(obs []Observation) {
	var (
		prevCountry, prevIndicator string
		prev                       *float64
	)
	for i := range obs {
		o := &obs[i]
		sameGroup := i > 0 && o.Country == prevCountry && o.IndicatorCode == prevIndicator
		o.YoYChange = nil
		if sameGroup && prev != nil && *prev != 0 && o.TargetValue != nil {
			v := (*o.TargetValue - *prev) / *prev * 100
			o.YoYChange = &v
		}
		prevCountry, prevIndicator, prev = o.Country, o.IndicatorCode, o.TargetValue
	}
}

// ClassifyRisk labels each observation high when its target strictly
// exceeds its indicator's mean across all countries and years, else low.
func ClassifyRisk(obs []Observation) {
	keys := make([]string, len(obs))
	vals := make([]*float64, len(obs))
	for i, o := range obs {
		keys[i] = o.IndicatorCode
		vals[i] = o.TargetValue
	}
	means := clean.GroupMeans(keys, vals)

	for i := range obs {
		o := &obs[i]
		o.RiskLevel = RiskLow
		if o.TargetValue == nil {
			continue
		}
		if m, ok := means[strings.TrimSpace(o.IndicatorCode)]; ok && *o.TargetValue > m {
			o.RiskLevel = RiskHigh
		}
	}
}

// Melt stacks the feature columns present in wide into (country,
// indicator_code, year, feature_name, feature_value) rows, one block per
// feature in LongFeatures order.
func Melt(wide *tabular.Table) *tabular.Table {
	ids := []string{schema.ColCountry, schema.ColIndicatorCode, schema.ColYear}
	long := tabular.New(append(ids, schema.ColFeatureName, schema.ColFeatureValue)...)
	for _, feature := range LongFeatures {
		if !wide.Has(feature) {
			continue
		}
		for i := range wide.Rows {
			long.Append([]string{
				wide.Get(i, schema.ColCountry),
				wide.Get(i, schema.ColIndicatorCode),
				wide.Get(i, schema.ColYear),
				feature,
				wide.Get(i, feature),
			})
		}
	}
	return long
}
