// Package domain provides the core types of the citation-integrity
// engine: citation mentions, bibliography entries, resolved works,
// match results, issues, and the analysis report.
package domain

import "strconv"

// CitationSystem identifies the citation family a mention belongs to.
type CitationSystem string

// Citation systems detected by the parser.
const (
	SystemNumeric    CitationSystem = "numeric"
	SystemAuthorDate CitationSystem = "author_date"
	SystemNotes      CitationSystem = "notes"
	SystemUnknown    CitationSystem = "unknown"
)

// CitationMention is one occurrence of an in-text citation marker. A single
// marker may reference several works; each becomes a CitationAtom.
type CitationMention struct {
	// ID is the mention's stable per-document identifier ("M1", "M2", ...).
	ID string `json:"id"`

	// Raw is the exact text span as it appeared in the manuscript.
	Raw string `json:"raw"`

	// System is the citation family the span was parsed under.
	System CitationSystem `json:"system"`

	// Offset is the byte offset of the span in the normalized document text.
	Offset int `json:"offset"`

	// Context is the surrounding sentence, clipped for display.
	Context string `json:"context,omitempty"`

	// Atoms are the single-work units extracted from the span, in order.
	Atoms []CitationAtom `json:"atoms"`
}

// CitationAtom is the smallest citable unit extracted from a mention: a
// numeric pointer, an author-date tuple, or a note-number reference.
type CitationAtom struct {
	// Number is the numeric pointer for numeric and notes systems (0 if unset).
	Number int `json:"number,omitempty"`

	// AuthorToken is the normalized first-author surname token for
	// author-date atoms. Matches the index's normalization exactly.
	AuthorToken string `json:"author_token,omitempty"`

	// RawAuthor is the author text as written in the mention.
	RawAuthor string `json:"raw_author,omitempty"`

	// Year is the four-digit year for author-date atoms (0 if unset).
	Year int `json:"year,omitempty"`

	// Suffix is the optional disambiguating year letter ("a", "b", ...).
	Suffix string `json:"suffix,omitempty"`

	// Locator is a retained trailing page/chapter locator, display only.
	Locator string `json:"locator,omitempty"`
}

// AuthorYearKey returns the atom's lookup key in the author-year form used
// by the reference index, or "" when the atom carries no author-date fields.
func (a CitationAtom) AuthorYearKey() string {
	if a.AuthorToken == "" || a.Year == 0 {
		return ""
	}
	return a.AuthorToken + "-" + a.YearToken()
}

// YearToken renders the year plus any suffix letter ("2020a").
func (a CitationAtom) YearToken() string {
	if a.Year == 0 {
		return ""
	}
	tok := strconv.Itoa(a.Year)
	if a.Suffix != "" {
		tok += a.Suffix
	}
	return tok
}

// BibliographyEntry is one parsed reference-list item. Created by the
// parser, enriched by the resolver, never deleted during a run.
type BibliographyEntry struct {
	// ID is the entry's stable per-document identifier ("R1", "R2", ...).
	ID string `json:"id"`

	// Raw is the entry text as it appeared in the reference list.
	Raw string `json:"raw"`

	// Number is the leading numeric index if present (0 if absent).
	Number int `json:"number,omitempty"`

	// FirstAuthor is the normalized first-author surname token.
	FirstAuthor string `json:"first_author,omitempty"`

	// Authors is the best-effort full author list as written.
	Authors []string `json:"authors,omitempty"`

	Year  int    `json:"year,omitempty"`
	Title string `json:"title,omitempty"`
	Venue string `json:"venue,omitempty"`

	Volume string `json:"volume,omitempty"`
	Issue  string `json:"issue,omitempty"`
	Pages  string `json:"pages,omitempty"`

	Identifiers WorkIdentifiers `json:"identifiers"`

	// Resolved is the external record the resolver matched, nil if unresolved.
	Resolved *ResolvedWork `json:"resolved,omitempty"`

	// Excluded marks entries filtered out by the excluded-source list.
	// Excluded entries generate no issues and never enter deep analysis.
	Excluded bool `json:"excluded,omitempty"`
}

// MatchMethod enumerates how an atom was linked to a bibliography entry.
type MatchMethod string

// Match methods, from strongest to weakest.
const (
	MatchByNumber         MatchMethod = "number"
	MatchByPosition       MatchMethod = "position_inferred"
	MatchAuthorYearExact  MatchMethod = "author_year"
	MatchAuthorYearSuffix MatchMethod = "author_year_suffix_ignored"
	MatchAuthorYearNearby MatchMethod = "author_year_nearby"
	MatchAuthorOnly       MatchMethod = "author_only"
	MatchLLM              MatchMethod = "llm_disambiguated"
	MatchNone             MatchMethod = "unmatched"
)

// MatchCandidate is one scored bibliography candidate retained as evidence.
type MatchCandidate struct {
	EntryID string  `json:"entry_id"`
	Score   float64 `json:"score"`
}

// MatchResult links a CitationAtom to zero or more bibliography entries.
// If Ambiguous is true the candidate evidence is retained for traceability
// and Confidence is below the disambiguation threshold.
type MatchResult struct {
	MentionID string       `json:"mention_id"`
	Atom      CitationAtom `json:"atom"`

	// EntryID is the best-matching bibliography entry, "" when unmatched.
	EntryID string `json:"entry_id,omitempty"`

	Method     MatchMethod `json:"method"`
	Confidence float64     `json:"confidence"`
	Ambiguous  bool        `json:"ambiguous,omitempty"`

	// Candidates holds up to the top five scored candidates as evidence.
	Candidates []MatchCandidate `json:"candidates,omitempty"`
}

// Matched reports whether the atom was linked to an entry.
func (m *MatchResult) Matched() bool {
	return m.EntryID != "" && m.Method != MatchNone
}
