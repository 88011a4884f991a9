package parse

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	doiCleanRe  = regexp.MustCompile(`^[\s\[\({<]*((?i)10\.\d{4,9}/[-._;()/:A-Za-z0-9]+)`)
	doiCoreRe   = regexp.MustCompile(`(?i)(10\.\d{4,9}/[-._;()/:A-Za-z0-9]+)`)
	wordRe      = regexp.MustCompile(`(?i)[a-z0-9]+`)
	authorToken = regexp.MustCompile(`(?i)[a-z][a-z'’\-]+`)
)

// stopwords excluded from content-token comparison.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "their": {},
	"this": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// NormalizeDOI extracts and lowercases a DOI from a raw string. It
// tolerates URL wrappers, leading brackets, and trailing punctuation.
// Returns "" when no DOI is present.
func NormalizeDOI(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var candidate string
	if m := doiCleanRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else if m := doiCoreRe.FindStringSubmatch(raw); m != nil {
		candidate = m[1]
	} else {
		return ""
	}

	candidate = strings.TrimRight(candidate, ").,;]")
	return strings.ToLower(candidate)
}

// Tokenize returns the set of lowercase alphanumeric tokens in text.
func Tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range wordRe.FindAllString(strings.ToLower(text), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// ContentTokens returns Tokenize minus stopwords and tokens shorter
// than three characters.
func ContentTokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for tok := range Tokenize(text) {
		if len(tok) <= 2 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// TokenOverlap returns |a∩b| / |a∪b| for two token sets, 0 when either
// is empty.
func TokenOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// NormalizeAuthorName reduces an author name to a comparable key:
// Unicode-decomposed with combining marks dropped, lowercased, and
// stripped to alphanumerics. Returns "" for empty input.
func NormalizeAuthorName(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ""
	}

	decomposed := norm.NFKD.String(raw)
	var sb strings.Builder
	sb.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// NormalizeYearToken lowercases and strips a year token ("2020a") to
// alphanumerics. Returns "" for empty input.
func NormalizeYearToken(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return ""
	}
	var sb strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// NormalizeAuthorYearKey builds the "surname-year" lookup key used by
// the reference index. Returns "" unless both parts normalize.
func NormalizeAuthorYearKey(author, year string) string {
	a := NormalizeAuthorName(author)
	y := NormalizeYearToken(year)
	if a == "" || y == "" {
		return ""
	}
	return a + "-" + y
}

// FirstSurnameToken reduces a raw author field that may contain several
// surnames, initials, or "et al." down to the first surname token. In-
// text locators and bibliography author lists both pass through this so
// lookups compare equivalent keys.
func FirstSurnameToken(raw string) string {
	cut := strings.TrimSpace(raw)
	if cut == "" {
		return ""
	}

	lower := strings.ToLower(cut)
	multiAuthor := strings.ContainsAny(lower, ",&;") ||
		strings.Contains(lower, " and ") ||
		strings.Contains(lower, " et al")
	if multiAuthor {
		for _, sep := range []string{",", "&", ";"} {
			if idx := strings.Index(cut, sep); idx >= 0 {
				cut = cut[:idx]
			}
		}
		lower = strings.ToLower(cut)
		if idx := strings.Index(lower, " and "); idx >= 0 {
			cut = cut[:idx]
		}
		lower = strings.ToLower(cut)
		if idx := strings.Index(lower, " et al"); idx >= 0 {
			cut = cut[:idx]
		}
		cut = strings.TrimSpace(cut)
		if m := authorToken.FindString(cut); m != "" {
			cut = m
		}
	}
	return cut
}
