// Package signals provides the retraction and predatory-venue signal
// collaborators. Each combines a curated CSV dataset with an optional
// API lookup and the resolver's own metadata flags, grading every hit
// into a confidence tier so the checks can frame weak evidence as
// review-needed rather than asserted fact.
package signals

import (
	"strings"
	"unicode"
)

// Tier grades how confidently a signal is asserted.
type Tier string

// Signal confidence tiers.
const (
	TierHigh         Tier = "high"
	TierReviewNeeded Tier = "review_needed"
)

// normalizeName reduces a venue, publisher, or title to a comparison
// key: lowercase, non-alphanumerics to spaces, whitespace collapsed.
func normalizeName(value string) string {
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
