package resolve

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/parse"
)

// Candidate scoring weights. Title similarity blends token overlap with
// edit distance; the remaining bonuses reward agreeing metadata. DOI
// agreement is the strongest single signal short of an identifier
// lookup.
const (
	titleJaccardWeight = 0.60
	titleEditWeight    = 0.40

	authorBonus     = 0.12
	yearExactBonus  = 0.08
	yearWindowBonus = 0.04
	doiBonus        = 0.20

	// DefaultPreprintYearGapMax is the widest preprint-to-journal year
	// drift tolerated when the config does not say otherwise.
	DefaultPreprintYearGapMax = 5

	// acceptThreshold accepts a candidate outright; candidates scoring
	// in [verifyThreshold, acceptThreshold) go to LLM verification.
	acceptThreshold = 0.93
	verifyThreshold = 0.65

	// identifierTitleAgreement is the minimum title similarity for an
	// identifier lookup hit to count as the referenced work;
	// identifierTitleOverride accepts a near-verbatim title even when
	// the author token disagrees.
	identifierTitleAgreement = 0.75
	identifierTitleOverride  = 0.92
)

// preprintVenueHints are venue substrings marking an entry as a
// preprint or working paper, widening the acceptable year gap.
var preprintVenueHints = []string{
	"preprint", "working paper", "arxiv", "biorxiv", "medrxiv", "ssrn",
}

// scoreCandidate scores an external candidate against a bibliography
// entry, in [0,1]. preprintGapMax is the widest year drift tolerated
// for preprint-like entries or candidates.
func scoreCandidate(entry *domain.BibliographyEntry, work *domain.ResolvedWork, preprintGapMax int) float64 {
	score := titleSimilarity(entry.Title, work.Title)

	if entry.FirstAuthor != "" {
		if cand := candidateSurname(work.FirstAuthorName()); cand != "" && cand == entry.FirstAuthor {
			score += authorBonus
		}
	}

	switch {
	case entry.Year != 0 && entry.Year == work.Year:
		score += yearExactBonus
	case entry.Year != 0 && work.Year != 0 && withinPreprintWindow(entry, work, preprintGapMax):
		score += yearWindowBonus
	}

	if entry.Identifiers.DOI != "" && entry.Identifiers.DOI == work.Identifiers.DOI {
		score += doiBonus
	}

	if score > 1 {
		score = 1
	}
	return score
}

// identifierAgreement reports whether an identifier lookup hit agrees
// with the entry's own author and title. Entries carrying neither field
// have nothing to disagree with and are accepted as-is.
func identifierAgreement(entry *domain.BibliographyEntry, work *domain.ResolvedWork) bool {
	if entry.Title == "" && entry.FirstAuthor == "" {
		return true
	}

	titleSim := 0.0
	if entry.Title != "" {
		titleSim = titleSimilarity(entry.Title, work.Title)
	}

	authorAgrees := entry.FirstAuthor == "" ||
		candidateSurname(work.FirstAuthorName()) == entry.FirstAuthor

	if entry.Title == "" {
		return authorAgrees
	}
	if titleSim >= identifierTitleOverride {
		return true
	}
	return titleSim >= identifierTitleAgreement && authorAgrees
}

// titleSimilarity blends content-token overlap with a normalized edit
// distance so both reorderings and near-verbatim titles score high.
func titleSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	jaccard := parse.TokenOverlap(parse.ContentTokens(a), parse.ContentTokens(b))

	na := strings.Join(strings.Fields(strings.ToLower(a)), " ")
	nb := strings.Join(strings.Fields(strings.ToLower(b)), " ")
	edit := 1.0
	if na != nb {
		dist := levenshtein.ComputeDistance(na, nb)
		longer := len(na)
		if len(nb) > longer {
			longer = len(nb)
		}
		edit = 1 - float64(dist)/float64(longer)
		if edit < 0 {
			edit = 0
		}
	}

	return titleJaccardWeight*jaccard + titleEditWeight*edit
}

// candidateSurname extracts the normalized surname from a provider
// author name, handling both "First Last" and "Last, First" forms.
func candidateSurname(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if idx := strings.Index(name, ","); idx >= 0 {
		return parse.NormalizeAuthorName(name[:idx])
	}
	fields := strings.Fields(name)
	return parse.NormalizeAuthorName(fields[len(fields)-1])
}

// withinPreprintWindow allows a year gap of up to gapMax when either
// side looks like a preprint: the candidate's work type, the entry's
// arXiv identifier, or a preprint-like entry venue. Covers arXiv
// postings and working papers later published in a journal.
func withinPreprintWindow(entry *domain.BibliographyEntry, work *domain.ResolvedWork, gapMax int) bool {
	if gapMax <= 0 {
		gapMax = DefaultPreprintYearGapMax
	}
	gap := entry.Year - work.Year
	if gap < 0 {
		gap = -gap
	}
	if gap > gapMax {
		return false
	}
	if work.WorkType == "preprint" || entry.Identifiers.ArXivID != "" {
		return true
	}
	return preprintLikeVenue(entry.Venue)
}

func preprintLikeVenue(venue string) bool {
	v := strings.ToLower(venue)
	if v == "" {
		return false
	}
	for _, hint := range preprintVenueHints {
		if strings.Contains(v, hint) {
			return true
		}
	}
	return false
}
