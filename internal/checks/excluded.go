package checks

import (
	"strings"
	"unicode"
)

// ExcludedFilter marks bibliography entries whose venue or publisher
// appears on the configured exclusion list. Matching is normalized
// exact-or-substring; the filter runs once, before any checks, and
// excluded entries generate no issues and never enter deep analysis.
type ExcludedFilter struct {
	patterns []string
}

// NewExcludedFilter builds a filter from the configured name list.
// Empty and unnormalizable patterns are dropped.
func NewExcludedFilter(names []string) *ExcludedFilter {
	f := &ExcludedFilter{}
	for _, name := range names {
		if p := normalizeExcluded(name); p != "" {
			f.patterns = append(f.patterns, p)
		}
	}
	return f
}

// Matches reports whether a venue or publisher name is excluded.
func (f *ExcludedFilter) Matches(name string) bool {
	key := normalizeExcluded(name)
	if key == "" {
		return false
	}
	for _, p := range f.patterns {
		if key == p || strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no patterns.
func (f *ExcludedFilter) Empty() bool {
	return len(f.patterns) == 0
}

// normalizeExcluded lowercases, maps non-alphanumerics to spaces, and
// collapses whitespace, mirroring the watchlist normalization so the
// same config value matches in both places.
func normalizeExcluded(value string) string {
	var sb strings.Builder
	sb.Grow(len(value))
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
