// Package archive keeps an immutable, timestamped byte copy of every raw file
// the pipeline ingests.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TimestampLayout is the UTC timestamp embedded in archive and interim names.
const TimestampLayout = "20060102_150405"

// maxCollisions bounds the suffix search for same-second names.
const maxCollisions = 10000

// Store copies raw files into a directory without ever replacing an existing copy.
type Store struct {
	dir string
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for archive names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Archive copies src byte-for-byte to {stem}_{YYYYMMDD_HHMMSS}{ext} and
// returns the archived path. The copy keeps the source's modification time.
func (s *Store) Archive(src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", eris.Wrapf(err, "archive: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	info, err := in.Stat()
	if err != nil {
		return "", eris.Wrapf(err, "archive: stat %s", src)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	out, path, err := CreateUnique(s.dir, stem+"_"+Timestamp(s.now()), ext)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "archive: copy %s", src)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "archive: close %s", path)
	}
	_ = os.Chtimes(path, info.ModTime(), info.ModTime())

	return path, nil
}

// List returns archived file names in lexicographic order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: list %s", s.dir)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Timestamp formats t in UTC using TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CreateUnique exclusively creates dir/{base}{ext}. When that name is taken
// it tries {base}_1{ext}, {base}_2{ext}, and so on. Existing files are never
// opened for writing.
func CreateUnique(dir, base, ext string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", eris.Wrapf(err, "archive: create dir %s", dir)
	}

	for n := 0; n < maxCollisions; n++ {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", eris.Wrapf(err, "archive: create %s", path)
		}
	}
	return nil, "", eris.Errorf("archive: no free name for %s%s in %s", base, ext, dir)
}
