package report

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Dashboard output file names.
const (
	DashboardCSV  = "dashboard_ready.csv"
	DashboardMeta = "dashboard_meta.json"
)

// DashboardColumns is the documented export subset. Columns the feature
// table lacks are left out.
var DashboardColumns = []string{
	schema.ColCountry,
	schema.ColIndicatorCode,
	schema.ColYear,
	"value_filled",
	schema.ColYoYChange,
	"rolling_mean_3",
	"rolling_std_3",
	schema.ColRiskLevel,
}

const dashboardDescription = "Dashboard-ready export for BI tools. Columns map to policy indicators and recent trends."

// Meta describes a dashboard export.
type Meta struct {
	Columns     []string `json:"columns"`
	Description string   `json:"description"`
	Rows        int      `json:"rows"`
}

// Dashboard writes dashboard_ready.csv and dashboard_meta.json.
type Dashboard struct{}

// Name implements Consumer.
func (Dashboard) Name() string { return "dashboard" }

// Produce implements Consumer.
func (Dashboard) Produce(_ context.Context, features *tabular.Table, dir string) ([]string, error) {
	log := zap.L().With(zap.String("component", "report.dashboard"))
	out := Subset(features, DashboardColumns)

	csvPath := filepath.Join(dir, DashboardCSV)
	if err := tabular.WriteFileAtomic(csvPath, out); err != nil {
		return nil, eris.Wrap(err, "dashboard: write csv")
	}

	meta := Meta{Columns: out.Columns, Description: dashboardDescription, Rows: out.Len()}
	if meta.Columns == nil {
		meta.Columns = []string{}
	}
	metaPath := filepath.Join(dir, DashboardMeta)
	err := tabular.WriteAtomic(metaPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	})
	if err != nil {
		return nil, eris.Wrap(err, "dashboard: write meta")
	}

	log.Info("dashboard export written", zap.Strings("columns", out.Columns), zap.Int("rows", out.Len()))
	return []string{csvPath, metaPath}, nil
}
