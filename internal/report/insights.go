package report

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Insight output file names.
const (
	InsightsText = "insights.txt"
	InsightsCSV  = "insights.csv"
)

// NoTrends is the summary line when nothing stands out.
const NoTrends = "No significant trends detected."

const topN = 3

// insightColumns are copied from the feature table into insights.csv.
var insightColumns = []string{
	schema.ColCountry,
	schema.ColIndicatorCode,
	schema.ColYear,
	schema.ColYoYChange,
	schema.ColRiskLevel,
}

// GroupStat is an aggregate for one (country, indicator) pair.
type GroupStat struct {
	Country       string
	IndicatorCode string
	Value         float64
}

// Summary is the computed insight content.
type Summary struct {
	Growth   []GroupStat
	HighRisk []GroupStat
	Lines    []string
}

type groupKey struct{ country, indicator string }

// Summarize ranks (country, indicator) pairs by mean yoy_change and by the
// number of high-risk observations, keeping the top three of each.
func Summarize(t *tabular.Table) Summary {
	var s Summary
	hasKeys := t.Has(schema.ColCountry) && t.Has(schema.ColIndicatorCode)

	if hasKeys && t.Has(schema.ColYoYChange) {
		sums := map[groupKey]float64{}
		counts := map[groupKey]int{}
		for i := range t.Rows {
			v, ok := schema.ParseFloat(t.Get(i, schema.ColYoYChange))
			if !ok {
				continue
			}
			k := groupKey{t.Get(i, schema.ColCountry), t.Get(i, schema.ColIndicatorCode)}
			sums[k] += v
			counts[k]++
		}
		for k, n := range counts {
			s.Growth = append(s.Growth, GroupStat{Country: k.country, IndicatorCode: k.indicator, Value: sums[k] / float64(n)})
		}
		s.Growth = top(s.Growth)
		if len(s.Growth) > 0 {
			parts := make([]string, len(s.Growth))
			for i, g := range s.Growth {
				parts[i] = fmt.Sprintf("%s %s: %.1f%%", g.Country, g.IndicatorCode, g.Value)
			}
			s.Lines = append(s.Lines, "Top growing indicators: "+strings.Join(parts, ", "))
		}
	}

	if hasKeys && t.Has(schema.ColRiskLevel) {
		counts := map[groupKey]int{}
		for i := range t.Rows {
			if t.Get(i, schema.ColRiskLevel) != "high" {
				continue
			}
			counts[groupKey{t.Get(i, schema.ColCountry), t.Get(i, schema.ColIndicatorCode)}]++
		}
		for k, n := range counts {
			s.HighRisk = append(s.HighRisk, GroupStat{Country: k.country, IndicatorCode: k.indicator, Value: float64(n)})
		}
		s.HighRisk = top(s.HighRisk)
		if len(s.HighRisk) > 0 {
			parts := make([]string, len(s.HighRisk))
			for i, g := range s.HighRisk {
				parts[i] = g.Country + " " + g.IndicatorCode
			}
			s.Lines = append(s.Lines, "High risk observations: "+strings.Join(parts, ", "))
		}
	}

	if len(s.Lines) == 0 {
		s.Lines = []string{NoTrends}
	}
	return s
}

// top sorts descending by value (ties by country then indicator) and keeps topN.
func top(stats []GroupStat) []GroupStat {
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		return a.IndicatorCode < b.IndicatorCode
	})
	if len(stats) > topN {
		stats = stats[:topN]
	}
	return stats
}

// Insights writes insights.txt and insights.csv.
type Insights struct{}

// Name implements Consumer.
func (Insights) Name() string { return "insights" }

// Produce implements Consumer.
func (Insights) Produce(_ context.Context, features *tabular.Table, dir string) ([]string, error) {
	log := zap.L().With(zap.String("component", "report.insights"))
	s := Summarize(features)

	txt := filepath.Join(dir, InsightsText)
	err := tabular.WriteAtomic(txt, func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(s.Lines, "\n"))
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "insights: write text")
	}

	csvPath := filepath.Join(dir, InsightsCSV)
	if err := tabular.WriteFileAtomic(csvPath, Subset(features, insightColumns)); err != nil {
		return nil, eris.Wrap(err, "insights: write csv")
	}

	log.Info("insights written", zap.Strings("lines", s.Lines), zap.String("dir", dir))
	return []string{txt, csvPath}, nil
}
