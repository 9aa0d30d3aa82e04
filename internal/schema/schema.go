// Package schema defines the raw indicator record contract shared by every stage.
package schema

import (
	"math"
	"strconv"
	"strings"
)

// Column names used across raw, interim, cleaned, and feature tables.
const (
	ColSource        = "source"
	ColYear          = "year"
	ColCountry       = "country"
	ColIndicatorCode = "indicator_code"
	ColValue         = "value"
	ColReliability   = "reliability"
	ColTargetValue   = "target_value"
	ColYoYChange     = "yoy_change"
	ColRiskLevel     = "risk_level"
	ColFeatureName   = "feature_name"
	ColFeatureValue  = "feature_value"
)

// Unknown fills categorical keys that are still missing after imputation.
const Unknown = "UNKNOWN"

// RequiredColumns is the fixed column contract for raw drop files.
var RequiredColumns = []string{
	ColSource,
	ColYear,
	ColCountry,
	ColIndicatorCode,
	ColValue,
	ColReliability,
}

// MissingColumns returns the required columns absent from header, in contract order.
func MissingColumns(header []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[NormalizeColumn(h)] = true
	}
	var missing []string
	for _, c := range RequiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// NormalizeColumn trims and lowercases a header cell so "Country " matches "country".
func NormalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseFloat coerces a cell to a number. Empty, non-numeric, and NaN cells
// yield ok=false rather than an error.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseYear parses a year cell. Spreadsheet and float-formatted years
// ("2020.0") are accepted as long as they are whole numbers.
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// FormatFloat renders a number the shortest way that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatOptionalFloat renders nil as an empty cell.
func FormatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}

// FormatOptionalYear renders nil as an empty cell.
func FormatOptionalYear(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
