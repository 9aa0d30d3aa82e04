package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// CSVLedger is the authoritative ledger: a delimited file whose header is
// written once, on creation, and which only ever grows.
type CSVLedger struct {
	path string
}

// NewCSV creates a ledger backed by the file at path.
func NewCSV(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

// Path returns the ledger file location.
func (l *CSVLedger) Path() string {
	return l.path
}

// Append encodes e and adds it to the end of the file in a single write.
func (l *CSVLedger) Append(_ context.Context, e Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return eris.Wrapf(err, "ledger: create dir for %s", l.path)
	}

	needHeader := true
	if info, err := os.Stat(l.path); err == nil && info.Size() > 0 {
		needHeader = false
	}

	e.Timestamp = e.Timestamp.UTC()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = needHeader
	if err := enc.Encode(e); err != nil {
		return eris.Wrap(err, "ledger: encode entry")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "ledger: flush entry")
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return eris.Wrapf(err, "ledger: open %s", l.path)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "ledger: append to %s", l.path)
	}
	return eris.Wrapf(f.Close(), "ledger: close %s", l.path)
}

// List decodes every entry in file order. A missing file is an empty ledger.
func (l *CSVLedger) List(_ context.Context) ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: read %s", l.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(bytes.NewReader(data)))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: read header of %s", l.path)
	}

	var entries []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "ledger: decode row %d of %s", len(entries)+2, l.path)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
