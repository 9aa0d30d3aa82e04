package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/indicator-pipeline/internal/schema"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Extensions lists the file extensions accepted in the drop directory.
var Extensions = []string{".csv", ".xlsx", ".xls"}

// Supported reports whether path has an accepted extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadFile parses path with the reader for its extension. The first row is
// the header.
func ReadFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path, XLSXOptions{})
	case ".xls":
		// The binary BIFF format predates OOXML and has no reader here.
		return nil, eris.Errorf("tabular: legacy .xls workbook %s cannot be parsed; re-save as .xlsx", filepath.Base(path))
	default:
		return nil, fmt.Errorf("tabular: %s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
}

// ReadCSV reads a comma-delimited table. Short rows are padded; rows wider
// than the header are an error.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("tabular: csv has no header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read csv header")
	}

	t := New(normalizeHeader(header)...)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: read csv row %d", line)
		}
		if len(record) > len(t.Columns) {
			return nil, eris.Errorf("tabular: csv row %d has %d fields, header has %d", line, len(record), len(t.Columns))
		}
		t.Append(record)
	}
	return t, nil
}

// XLSXOptions configures the spreadsheet reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSX reads one worksheet. Blank rows are skipped. Like ReadCSV, short
// rows are padded and rows with data beyond the header are an error.
func ReadXLSX(path string, opts XLSXOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var t *Table
	for i, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if t == nil {
			if blank(cells) {
				continue
			}
			t = New(normalizeHeader(cells)...)
			continue
		}
		if blank(cells) {
			continue
		}
		// Styled but empty trailing cells are not data.
		for len(cells) > len(t.Columns) && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		if len(cells) > len(t.Columns) {
			return nil, eris.Errorf("xlsx: sheet %q row %d has %d fields, header has %d", sheet.Name, i+1, len(cells), len(t.Columns))
		}
		t.Append(cells)
	}
	if t == nil {
		return nil, eris.Errorf("xlsx: sheet %q has no header row", sheet.Name)
	}
	return t, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// normalizeHeader lowercases header cells, strips a leading BOM, names blank
// headers by position, and suffixes duplicates (".1", ".2").
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = string(bytes.TrimPrefix([]byte(h), utf8BOM))
		}
		name := schema.NormalizeColumn(h)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
