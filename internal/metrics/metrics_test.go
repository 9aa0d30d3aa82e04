package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.FileIngested(5)
	r.FileIngested(3)
	r.FileFailed("parse_error")
	r.FileFailed("parse_error")
	r.FileFailed("unsupported_format")
	r.Cleaned(8, 2)
	r.FeaturesDerived(8)
	r.StageFinished("clean", 1500*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(r.filesIngested), 0)
	assert.InDelta(t, 8, testutil.ToFloat64(r.rowsStaged), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.filesFailed.WithLabelValues("parse_error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.valuesImputed), 0)
	assert.InDelta(t, 1.5, testutil.ToFloat64(r.stageDuration.WithLabelValues("clean")), 0.0001)

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 2, snap["indicator_pipeline_files_ingested_total"], 0)
	assert.InDelta(t, 1, snap[`indicator_pipeline_files_failed_total{kind="unsupported_format"}`], 0)
	assert.InDelta(t, 8, snap["indicator_pipeline_feature_rows_total"], 0)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.FileIngested(1)
	r.FileFailed("parse_error")
	r.Cleaned(1, 1)
	r.FeaturesDerived(1)
	r.StageFinished("ingest", time.Second)
	assert.Nil(t, r.Registry())

	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.FileIngested(4)

	path := filepath.Join(t.TempDir(), "textfile", "indicator_pipeline.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "indicator_pipeline_files_ingested_total 1")
	assert.Contains(t, string(data), "indicator_pipeline_rows_staged_total 4")

	assert.NoError(t, r.WriteTextfile(""))
}
