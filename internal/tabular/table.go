// Package tabular reads and writes the delimited and spreadsheet tables that
// flow between pipeline stages.
package tabular

import "slices"

// Table is a rectangular string table. An empty cell means "missing".
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	t := &Table{Columns: slices.Clone(columns)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// Index returns the position of col, or -1.
func (t *Table) Index(col string) int {
	if t.index == nil || len(t.index) != len(t.Columns) {
		t.reindex()
	}
	i, ok := t.index[col]
	if !ok {
		return -1
	}
	return i
}

// Has reports whether col is present.
func (t *Table) Has(col string) bool {
	return t.Index(col) >= 0
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Get returns the cell at row/col, or "" when the column is absent.
func (t *Table) Get(row int, col string) string {
	i := t.Index(col)
	if i < 0 || i >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][i]
}

// Set writes a cell. The column must exist.
func (t *Table) Set(row int, col string, v string) {
	i := t.Index(col)
	if i < 0 {
		return
	}
	t.Rows[row][i] = v
}

// Column returns all cells of col, or nil when absent.
func (t *Table) Column(col string) []string {
	i := t.Index(col)
	if i < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// Rename changes the name of column from to to. It is a no-op when from is
// absent or to already exists.
func (t *Table) Rename(from, to string) {
	i := t.Index(from)
	if i < 0 || t.Has(to) {
		return
	}
	t.Columns[i] = to
	t.reindex()
}

// EnsureColumn appends col filled with fill when it is not already present.
func (t *Table) EnsureColumn(col string, fill string) {
	if t.Has(col) {
		return
	}
	t.Columns = append(t.Columns, col)
	t.reindex()
	for r := range t.Rows {
		t.Rows[r] = append(t.Rows[r], fill)
	}
}

// Append adds a row, padding or truncating it to the column count.
func (t *Table) Append(row []string) {
	n := len(t.Columns)
	out := make([]string, n)
	copy(out, row)
	t.Rows = append(t.Rows, out)
}

// Concat unions tables by column name. Columns keep first-seen order and
// cells for columns a table lacks stay empty.
func Concat(tables ...*Table) *Table {
	var cols []string
	seen := make(map[string]bool)
	for _, tb := range tables {
		for _, c := range tb.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}

	out := New(cols...)
	for _, tb := range tables {
		pos := make([]int, len(tb.Columns))
		for i, c := range tb.Columns {
			pos[i] = out.Index(c)
		}
		for _, row := range tb.Rows {
			merged := make([]string, len(cols))
			for i, v := range row {
				if i < len(pos) {
					merged[pos[i]] = v
				}
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}
