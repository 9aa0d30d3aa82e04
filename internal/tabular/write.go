package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// WriteCSV writes the header and every row of t.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "tabular: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush")
}

// WriteFileAtomic writes t to a temp file next to path and renames it into
// place, so readers never observe a half-written table.
func WriteFileAtomic(path string, t *Table) error {
	return WriteAtomic(path, func(w io.Writer) error { return WriteCSV(w, t) })
}

// WriteAtomic creates parent directories, streams write into a temp file in
// the same directory, and renames it over path on success.
func WriteAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "tabular: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "tabular: create temp for %s", path)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := write(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrapf(err, "tabular: close temp for %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return eris.Wrapf(err, "tabular: rename into %s", path)
	}
	return nil
}
