// Package report holds the downstream consumers of the wide feature table:
// the insight summary and the dashboard export.
package report

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indicator-pipeline/internal/pipeline"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Consumer turns the wide feature table into report artifacts under a
// directory and returns the paths it wrote.
type Consumer interface {
	Name() string
	Produce(ctx context.Context, features *tabular.Table, dir string) ([]string, error)
}

// LoadFeatures reads the wide feature table. A missing file is a
// MissingUpstreamArtifact error.
func LoadFeatures(path string) (*tabular.Table, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, pipeline.Errorf(pipeline.KindMissingArtifact, "report: load features",
			"features file not found at %s; run features first", path)
	}
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	return t, nil
}

// Subset returns a table with the columns of want that t has, in want order.
func Subset(t *tabular.Table, want []string) *tabular.Table {
	var cols []string
	for _, c := range want {
		if t.Has(c) {
			cols = append(cols, c)
		}
	}
	out := tabular.New(cols...)
	for i := range t.Rows {
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = t.Get(i, c)
		}
		out.Append(row)
	}
	return out
}

// Run loads the feature table once and hands it to each consumer in order,
// stopping at the first failure.
func Run(ctx context.Context, featuresPath, dir string, consumers ...Consumer) ([]string, error) {
	features, err := LoadFeatures(featuresPath)
	if err != nil {
		return nil, err
	}
	var written []string
	for _, c := range consumers {
		if err := ctx.Err(); err != nil {
			return written, eris.Wrap(err, "report: cancelled")
		}
		paths, err := c.Produce(ctx, features, dir)
		if err != nil {
			return written, eris.Wrapf(err, "report: %s", c.Name())
		}
		written = append(written, paths...)
	}
	return written, nil
}
