package ingest

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indicator-pipeline/internal/schema"
	"github.com/sells-group/indicator-pipeline/internal/tabular"
)

// Summary is the provenance digest of one parsed file.
type Summary struct {
	Source      string
	YearMin     *int
	YearMax     *int
	Countries   []string
	Indicators  []string
	Reliability []string
}

// Summarize computes the ledger fields for a parsed table. Blank year cells
// are ignored; a non-integer year is an error since the range would be
// meaningless.
func Summarize(t *tabular.Table) (Summary, error) {
	var s Summary

	if t.Has(schema.ColSource) && t.Len() > 0 {
		s.Source = strings.TrimSpace(t.Get(0, schema.ColSource))
	}

	for i, cell := range t.Column(schema.ColYear) {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		y, ok := schema.ParseYear(cell)
		if !ok {
			return Summary{}, eris.Errorf("ingest: row %d: year %q is not an integer", i+2, cell)
		}
		if s.YearMin == nil || y < *s.YearMin {
			s.YearMin = &y
		}
		if s.YearMax == nil || y > *s.YearMax {
			s.YearMax = &y
		}
	}

	s.Countries = uniqueSorted(t.Column(schema.ColCountry))
	s.Indicators = uniqueSorted(t.Column(schema.ColIndicatorCode))
	s.Reliability = uniqueSorted(t.Column(schema.ColReliability))
	return s, nil
}

func uniqueSorted(cells []string) []string {
	var out []string
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// joinSet renders a sorted set the way the ledger stores it.
func joinSet(vals []string) string {
	return strings.Join(vals, ";")
}
