// Package metrics records per-run pipeline counters in a private Prometheus
// registry and exports them to a node-exporter textfile.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rotisserie/eris"
)

const namespace = "indicator_pipeline"

// Recorder holds the run metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	filesIngested prometheus.Counter
	filesFailed   *prometheus.CounterVec
	rowsStaged    prometheus.Counter
	valuesImputed prometheus.Counter
	rowsCleaned   prometheus.Counter
	featureRows   prometheus.Counter
	stageDuration *prometheus.GaugeVec
}

// New creates a Recorder with all metrics registered.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.filesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_ingested_total",
		Help:      "Raw files archived, staged, and recorded in the ledger",
	})
	r.filesFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_failed_total",
		Help:      "Raw files that failed ingestion by error kind",
	}, []string{"kind"})
	r.rowsStaged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_staged_total",
		Help:      "Rows written to interim files",
	})
	r.valuesImputed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "values_imputed_total",
		Help:      "Missing target values replaced by their indicator group mean",
	})
	r.rowsCleaned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_cleaned_total",
		Help:      "Rows written to the cleaned dataset",
	})
	r.featureRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feature_rows_total",
		Help:      "Rows written to the wide feature table",
	})
	r.stageDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of the last run of each stage",
	}, []string{"stage"})

	r.registry.MustRegister(
		r.filesIngested,
		r.filesFailed,
		r.rowsStaged,
		r.valuesImputed,
		r.rowsCleaned,
		r.featureRows,
		r.stageDuration,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// FileIngested counts one successfully ingested file and its staged rows.
func (r *Recorder) FileIngested(rows int) {
	if r == nil {
		return
	}
	r.filesIngested.Inc()
	r.rowsStaged.Add(float64(rows))
}

// FileFailed counts one failed file under its error kind.
func (r *Recorder) FileFailed(kind string) {
	if r == nil {
		return
	}
	r.filesFailed.WithLabelValues(kind).Inc()
}

// Cleaned records the output of a cleaning run.
func (r *Recorder) Cleaned(rows, imputed int) {
	if r == nil {
		return
	}
	r.rowsCleaned.Add(float64(rows))
	r.valuesImputed.Add(float64(imputed))
}

// FeaturesDerived records the number of wide feature rows written.
func (r *Recorder) FeaturesDerived(rows int) {
	if r == nil {
		return
	}
	r.featureRows.Add(float64(rows))
}

// StageFinished records how long a stage took.
func (r *Recorder) StageFinished(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Set(elapsed.Seconds())
}

// Snapshot is a flat view of the recorded values, keyed by metric name
// (with label values appended as name{label="value"}).
type Snapshot map[string]float64

// Snapshot gathers the current metric values.
func (r *Recorder) Snapshot() (Snapshot, error) {
	if r == nil {
		return Snapshot{}, nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return nil, eris.Wrap(err, "metrics: gather")
	}
	snap := make(Snapshot)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			snap[seriesName(mf.GetName(), m.GetLabel())] = metricValue(m)
		}
	}
	return snap, nil
}

func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	out := name + "{"
	for i, lp := range labels {
		if i > 0 {
			out += ","
		}
		out += lp.GetName() + `="` + lp.GetValue() + `"`
	}
	return out + "}"
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}

// WriteTextfile writes the registry in the text exposition format to path,
// creating parent directories. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "metrics: create dir for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
