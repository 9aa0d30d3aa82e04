package features

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/indicator-pipeline/internal/metrics"
	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func table(cols []string, rows ...[]string) *tabular.Table {
	t := tabular.New(cols...)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func yoys(obs []Observation) []*float64 {
	out := make([]*float64, len(obs))
	for i, o := range obs {
		out[i] = o.YoYChange
	}
	return out
}

func TestYoYChange_Sequence(t *testing.T) {
	in := table([]string{"country", "indicator_code", "year", "target_value"},
		[]string{"A", "X", "2022", "99"},
		[]string{"A", "X", "2020", "100"},
		[]string{"A", "X", "2021", "110"},
	)
	_, obs := Derive(in)

	require.Len(t, obs, 3)
	assert.Equal(t, 2020, *obs[0].Year)
	assert.Nil(t, obs[0].YoYChange)
	require.NotNil(t, obs[1].YoYChange)
	assert.InDelta(t, 10.0, *obs[1].YoYChange, 1e-9)
	require.NotNil(t, obs[2].YoYChange)
	assert.InDelta(t, -10.0, *obs[2].YoYChange, 1e-9)
}

func TestYoYChange_EdgeCases(t *testing.T) {
	tests := []struct {
		name string
		obs  []Observation
		want []*float64
	}{
		{
			name: "zero predecessor",
			obs: []Observation{
				{Country: "A", IndicatorCode: "X", Year: ip(2020), TargetValue: fp(0)},
				{Country: "A", IndicatorCode: "X", Year: ip(2021), TargetValue: fp(5)},
			},
			want: []*float64{nil, nil},
		},
		{
			name: "missing predecessor",
			obs: []Observation{
				{Country: "A", IndicatorCode: "X", Year: ip(2020), TargetValue: fp(10)},
				{Country: "A", IndicatorCode: "X", Year: ip(2021)},
				{Country: "A", IndicatorCode: "X", Year: ip(2022), TargetValue: fp(12)},
			},
			want: []*float64{nil, nil, nil},
		},
		{
			name: "group boundary",
			obs: []Observation{
				{Country: "A", IndicatorCode: "X", Year: ip(2020), TargetValue: fp(10)},
				{Country: "A", IndicatorCode: "Y", Year: ip(2021), TargetValue: fp(20)},
				{Country: "B", IndicatorCode: "Y", Year: ip(2022), TargetValue: fp(30)},
				{Country: "B", IndicatorCode: "Y", Year: ip(2023), TargetValue: fp(15)},
			},
			want: []*float64{nil, nil, nil, fp(-50)},
		},
		{
			name: "single row",
			obs:  []Observation{{Country: "A", IndicatorCode: "X", TargetValue: fp(1)}},
			want: []*float64{nil},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			YoYChange(tt.obs)
			got := yoys(tt.obs)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				if tt.want[i] == nil {
					assert.Nil(t, got[i], "row %d", i)
					continue
				}
				require.NotNil(t, got[i], "row %d", i)
				assert.InDelta(t, *tt.want[i], *got[i], 1e-9)
			}
		})
	}
}

func TestClassifyRisk(t *testing.T) {
	obs := []Observation{
		{IndicatorCode: "X", TargetValue: fp(10)},
		{IndicatorCode: "X", TargetValue: fp(20)},
		{IndicatorCode: "X", TargetValue: fp(30)},
		{IndicatorCode: "X"},
		{IndicatorCode: "Y", TargetValue: fp(5)},
		{IndicatorCode: "Y", TargetValue: fp(5)},
	}
	ClassifyRisk(obs)

	assert.Equal(t, RiskLow, obs[0].RiskLevel)
	// Exactly equal to the mean is a tie and classifies low.
	assert.Equal(t, RiskLow, obs[1].RiskLevel)
	assert.Equal(t, RiskHigh, obs[2].RiskLevel)
	assert.Equal(t, RiskLow, obs[3].RiskLevel)
	assert.Equal(t, RiskLow, obs[4].RiskLevel)
	assert.Equal(t, RiskLow, obs[5].RiskLevel)
}

func TestSortObservations_Stable(t *testing.T) {
	obs := []Observation{
		{Country: "B", IndicatorCode: "X", Year: ip(2020), row: 0},
		{Country: "A", IndicatorCode: "X", row: 1},
		{Country: "A", IndicatorCode: "X", Year: ip(2021), row: 2},
		{Country: "A", IndicatorCode: "X", Year: ip(2021), row: 3},
		{Country: "A", IndicatorCode: "W", Year: ip(2030), row: 4},
	}
	SortObservations(obs)

	var order []int
	for _, o := range obs {
		order = append(order, o.row)
	}
	assert.Equal(t, []int{4, 2, 3, 1, 0}, order)
}

func TestDerive_HarmonizesKeys(t *testing.T) {
	in := table([]string{"country", "indicator_code", "year", "target_value", "source"},
		[]string{"ken", "i1", "2021", "110", "WB"},
		[]string{"KEN", "I1", "2020", "100", "WB"},
	)
	wide, obs := Derive(in)

	assert.Equal(t, []string{"country", "indicator_code", "year", "target_value", "source", "yoy_change", "risk_level"}, wide.Columns)
	assert.Equal(t, "KEN", wide.Get(0, "country"))
	assert.Equal(t, "I1", wide.Get(1, "indicator_code"))
	assert.Equal(t, "2020", wide.Get(0, "year"))
	assert.Empty(t, wide.Get(0, "yoy_change"))
	assert.Equal(t, "10", wide.Get(1, "yoy_change"))
	assert.Equal(t, "high", wide.Get(1, "risk_level"))
	assert.Equal(t, "WB", wide.Get(1, "source"))
	assert.Equal(t, 1, obs[1].row)
	// Input is not modified.
	assert.Equal(t, "ken", in.Get(0, "country"))
}

func TestMelt(t *testing.T) {
	wide := table([]string{"country", "indicator_code", "year", "target_value", "yoy_change", "risk_level"},
		[]string{"A", "X", "2020", "100", "", "low"},
		[]string{"A", "X", "2021", "110", "10", "high"},
	)
	long := Melt(wide)

	assert.Equal(t, []string{"country", "indicator_code", "year", "feature_name", "feature_value"}, long.Columns)
	require.Equal(t, 4, long.Len())
	assert.Equal(t, []string{"A", "X", "2020", "target_value", "100"}, long.Rows[0])
	assert.Equal(t, []string{"A", "X", "2021", "target_value", "110"}, long.Rows[1])
	assert.Equal(t, []string{"A", "X", "2020", "yoy_change", ""}, long.Rows[2])
	assert.Equal(t, []string{"A", "X", "2021", "yoy_change", "10"}, long.Rows[3])

	onlyTarget := Melt(table([]string{"country", "indicator_code", "year", "target_value"}, []string{"A", "X", "2020", "1"}))
	assert.Equal(t, 1, onlyTarget.Len())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.True(t, pipeline.IsKind(err, pipeline.KindMissingArtifact))
	assert.Contains(t, err.Error(), "run clean first")

	noTarget := filepath.Join(dir, "no_target.csv")
	require.NoError(t, os.WriteFile(noTarget, []byte("country,year\nKEN,2020\n"), 0o644))
	_, err = Load(noTarget)
	require.Error(t, err)
	assert.True(t, pipeline.IsKind(err, pipeline.KindMissingTarget))
}

func TestLoad_RenamesValueColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleaned.csv")
	require.NoError(t, os.WriteFile(path, []byte("country,indicator_code,year,value\nKEN,I1,2020,5\n"), 0o644))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.True(t, tbl.Has(schema.ColTargetValue))
	assert.False(t, tbl.Has(schema.ColValue))
	assert.Equal(t, "5", tbl.Get(0, schema.ColTargetValue))
}

func TestRun_WritesBothTables(t *testing.T) {
	dir := t.TempDir()
	cleaned := filepath.Join(dir, "processed", "cleaned.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(cleaned), 0o755))
	require.NoError(t, os.WriteFile(cleaned, []byte(
		"source,year,country,indicator_code,value,reliability,target_value\n"+
			"UNSDG_placeholder,2020,KEN,I1,1000000,verified,1000000\n"+
			"UNSDG_placeholder,2021,KEN,I1,1010000,verified,1010000\n"+
			"UNSDG_placeholder,2022,TZA,I1,900000,verified,900000\n",
	), 0o644))

	opts := Options{
		Cleaned:      cleaned,
		Features:     filepath.Join(dir, "processed", "fe", "features.csv"),
		FeaturesLong: filepath.Join(dir, "processed", "fe", "features_long.csv"),
	}
	rec := metrics.New()
	res, err := Run(context.Background(), opts, rec)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 6, res.LongRows)
	assert.Equal(t, 2, res.High)

	wide, err := tabular.ReadFile(opts.Features)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEN", "KEN", "TZA"}, wide.Column("country"))
	assert.Equal(t, []string{"high", "high", "low"}, wide.Column("risk_level"))
	assert.Equal(t, "1", wide.Get(1, "yoy_change"))

	long, err := tabular.ReadFile(opts.FeaturesLong)
	require.NoError(t, err)
	assert.Equal(t, 6, long.Len())

	snap, err := rec.Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 3, snap["indicator_pipeline_feature_rows_total"], 0)
}

func TestRun_MissingCleanedWritesNothing(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		Cleaned:      filepath.Join(dir, "cleaned.csv"),
		Features:     filepath.Join(dir, "fe", "features.csv"),
		FeaturesLong: filepath.Join(dir, "fe", "features_long.csv"),
	}
	_, err := Run(context.Background(), opts, nil)
	require.Error(t, err)
	assert.Equal(t, 1, pipeline.ExitCode(err))
	assert.NoFileExists(t, opts.Features)
	assert.NoFileExists(t, opts.FeaturesLong)
}
