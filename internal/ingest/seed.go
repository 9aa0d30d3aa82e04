package ingest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// SeedFileName is the sample drop written into an empty drop directory.
const SeedFileName = "dummy_sdg.csv"

// SeedTable returns the deterministic sample drop.
func SeedTable() *tabular.Table {
	t := tabular.New(schema.RequiredColumns...)
	for _, row := range [][]string{
		{"UNSDG_placeholder", "2020", "KEN", "I1", "1000000", "verified"},
		{"UNSDG_placeholder", "2021", "KEN", "I1", "1010000", "verified"},
		{"UNSDG_placeholder", "2020", "UGA", "I2", "500000", "estimated"},
		{"UNSDG_placeholder", "2021", "UGA", "I2", "520000", "estimated"},
		{"UNSDG_placeholder", "2022", "TZA", "I1", "900000", "verified"},
	} {
		t.Append(row)
	}
	return t
}

// Seed writes SeedFileName into dir unless the seed already exists or dir
// already holds a supported drop file. It reports whether a file was written.
func Seed(dir string) (bool, error) {
	log := zap.L().With(zap.String("component", "ingest.seed"))
	path := filepath.Join(dir, SeedFileName)

	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, eris.Wrapf(err, "ingest: stat seed %s", path)
	}

	existing, err := Discover(dir)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}

	if err := tabular.WriteFileAtomic(path, SeedTable()); err != nil {
		return false, eris.Wrap(err, "ingest: write seed")
	}
	log.Info("created sample drop file", zap.String("path", path))
	return true, nil
}
