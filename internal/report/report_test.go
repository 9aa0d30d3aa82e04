package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

var featureCols = []string{"source", "country", "indicator_code", "year", "target_value", "yoy_change", "risk_level"}

func featureTable(rows ...[]string) *tabular.Table {
	t := tabular.New(featureCols...)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func sampleFeatures() *tabular.Table {
	return featureTable(
		[]string{"WB", "KEN", "I1", "2020", "100", "", "low"},
		[]string{"WB", "KEN", "I1", "2021", "110", "10", "high"},
		[]string{"WB", "KEN", "I1", "2022", "132", "20", "high"},
		[]string{"WB", "UGA", "I2", "2020", "50", "", "low"},
		[]string{"WB", "UGA", "I2", "2021", "52", "4", "high"},
		[]string{"WB", "TZA", "I1", "2021", "90", "", "low"},
		[]string{"WB", "TZA", "I2", "2020", "10", "", "low"},
		[]string{"WB", "TZA", "I2", "2021", "5", "-50", "low"},
		[]string{"WB", "RWA", "I1", "2020", "1", "", "high"},
	)
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleFeatures())

	require.Len(t, s.Growth, 3)
	assert.Equal(t, GroupStat{"KEN", "I1", 15}, s.Growth[0])
	assert.Equal(t, GroupStat{"UGA", "I2", 4}, s.Growth[1])
	assert.Equal(t, GroupStat{"TZA", "I2", -50}, s.Growth[2])

	require.Len(t, s.HighRisk, 3)
	assert.Equal(t, GroupStat{"KEN", "I1", 2}, s.HighRisk[0])
	assert.Equal(t, GroupStat{"RWA", "I1", 1}, s.HighRisk[1])
	assert.Equal(t, GroupStat{"UGA", "I2", 1}, s.HighRisk[2])

	assert.Equal(t, []string{
		"Top growing indicators: KEN I1: 15.0%, UGA I2: 4.0%, TZA I2: -50.0%",
		"High risk observations: KEN I1, RWA I1, UGA I2",
	}, s.Lines)
}

func TestSummarize_NoTrends(t *testing.T) {
	s := Summarize(featureTable([]string{"WB", "KEN", "I1", "2020", "1", "", "low"}))
	assert.Equal(t, []string{NoTrends}, s.Lines)

	s = Summarize(tabular.New("country"))
	assert.Equal(t, []string{NoTrends}, s.Lines)
}

func TestSubset(t *testing.T) {
	out := Subset(sampleFeatures(), []string{"risk_level", "missing", "country"})
	assert.Equal(t, []string{"risk_level", "country"}, out.Columns)
	assert.Equal(t, []string{"low", "KEN"}, out.Rows[0])
}

func TestInsights_Produce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "insights")
	paths, err := Insights{}.Produce(context.Background(), sampleFeatures(), dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	txt, err := os.ReadFile(filepath.Join(dir, InsightsText))
	require.NoError(t, err)
	assert.Contains(t, string(txt), "Top growing indicators: KEN I1: 15.0%")

	csv, err := tabular.ReadFile(filepath.Join(dir, InsightsCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "indicator_code", "year", "yoy_change", "risk_level"}, csv.Columns)
	assert.Equal(t, 9, csv.Len())
}

func TestDashboard_Produce(t *testing.T) {
	dir := t.TempDir()
	paths, err := Dashboard{}.Produce(context.Background(), sampleFeatures(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, DashboardCSV), filepath.Join(dir, DashboardMeta)}, paths)

	out, err := tabular.ReadFile(filepath.Join(dir, DashboardCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "indicator_code", "year", "yoy_change", "risk_level"}, out.Columns)

	data, err := os.ReadFile(filepath.Join(dir, DashboardMeta))
	require.NoError(t, err)
	var meta Meta
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, out.Columns, meta.Columns)
	assert.Equal(t, 9, meta.Rows)
	assert.NotEmpty(t, meta.Description)
}

func TestRun_MissingFeatures(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), filepath.Join(dir, "features.csv"), dir, Insights{}, Dashboard{})
	require.Error(t, err)
	assert.True(t, pipeline.IsKind(err, pipeline.KindMissingArtifact))
	assert.NoFileExists(t, filepath.Join(dir, InsightsText))
}

func TestRun_AllConsumers(t *testing.T) {
	dir := t.TempDir()
	features := filepath.Join(dir, "features.csv")
	require.NoError(t, tabular.WriteFileAtomic(features, sampleFeatures()))

	written, err := Run(context.Background(), features, filepath.Join(dir, "outputs"), Insights{}, Dashboard{})
	require.NoError(t, err)
	assert.Len(t, written, 4)
	for _, p := range written {
		assert.FileExists(t, p)
	}
}
