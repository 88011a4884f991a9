// Package refindex builds the lookup structures the matcher uses to
// link in-text citation atoms to bibliography entries: numeric,
// author-year, author-only, and identifier indexes over a parsed
// reference list.
package refindex

import (
	"regexp"
	"strconv"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/parse"
)

var suffixedYearRe = regexp.MustCompile(`\b((?:19|20)\d{2})([a-z])\b`)

// Index holds the per-document reference lookup tables. Entries are
// never removed once indexed; lookups return entry IDs into the
// original bibliography.
type Index struct {
	entries map[string]*domain.BibliographyEntry
	order   []string

	byNumber     map[int]string
	byAuthorYear map[string][]string
	byAuthor     map[string][]string
	byIdentifier map[string]string

	yearTokens map[string]string
	surnames   map[string]map[string]struct{}
}

// Build indexes a parsed bibliography. When two entries claim the same
// number the first keeps it; later claimants stay reachable through
// the author-year and author indexes.
func Build(entries []domain.BibliographyEntry) *Index {
	ix := &Index{
		entries:      make(map[string]*domain.BibliographyEntry, len(entries)),
		order:        make([]string, 0, len(entries)),
		byNumber:     make(map[int]string),
		byAuthorYear: make(map[string][]string),
		byAuthor:     make(map[string][]string),
		byIdentifier: make(map[string]string),
		yearTokens:   make(map[string]string, len(entries)),
		surnames:     make(map[string]map[string]struct{}, len(entries)),
	}

	for i := range entries {
		entry := &entries[i]
		ix.entries[entry.ID] = entry
		ix.order = append(ix.order, entry.ID)

		if entry.Number > 0 {
			if _, taken := ix.byNumber[entry.Number]; !taken {
				ix.byNumber[entry.Number] = entry.ID
			}
		}

		token := yearTokenOf(entry)
		ix.yearTokens[entry.ID] = token

		names := surnameSet(entry)
		ix.surnames[entry.ID] = names
		for name := range names {
			ix.byAuthor[name] = appendUnique(ix.byAuthor[name], entry.ID)
		}

		if entry.FirstAuthor != "" && token != "" {
			ix.byAuthorYear[entry.FirstAuthor+"-"+token] =
				appendUnique(ix.byAuthorYear[entry.FirstAuthor+"-"+token], entry.ID)
			// A suffixed token also answers unsuffixed lookups so a
			// plain "(Bol, 2018)" can still reach "Bol 2018a".
			if plain := parse.NormalizeYearToken(strconv.Itoa(entry.Year)); plain != token && entry.Year > 0 {
				ix.byAuthorYear[entry.FirstAuthor+"-"+plain] =
					appendUnique(ix.byAuthorYear[entry.FirstAuthor+"-"+plain], entry.ID)
			}
		}

		indexIdentifiers(ix, entry)
	}

	return ix
}

// yearTokenOf prefers the suffixed form found in the raw entry text
// ("2018a") over the bare parsed year, keeping it consistent with the
// suffix the author-date citations use.
func yearTokenOf(entry *domain.BibliographyEntry) string {
	if entry.Year == 0 {
		return ""
	}
	plain := strconv.Itoa(entry.Year)
	for _, m := range suffixedYearRe.FindAllStringSubmatch(entry.Raw, -1) {
		if m[1] == plain {
			return m[1] + m[2]
		}
	}
	return plain
}

func surnameSet(entry *domain.BibliographyEntry) map[string]struct{} {
	out := make(map[string]struct{}, len(entry.Authors))
	for _, author := range entry.Authors {
		if name := parse.NormalizeAuthorName(parse.FirstSurnameToken(author)); name != "" {
			out[name] = struct{}{}
		}
	}
	if entry.FirstAuthor != "" {
		out[entry.FirstAuthor] = struct{}{}
	}
	return out
}

func indexIdentifiers(ix *Index, entry *domain.BibliographyEntry) {
	for _, id := range []string{
		entry.Identifiers.DOI,
		entry.Identifiers.ArXivID,
		entry.Identifiers.PubMedID,
	} {
		if id == "" {
			continue
		}
		if _, taken := ix.byIdentifier[id]; !taken {
			ix.byIdentifier[id] = entry.ID
		}
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int { return len(ix.order) }

// IDs returns entry IDs in bibliography order.
func (ix *Index) IDs() []string { return ix.order }

// Entry returns the entry with the given ID.
func (ix *Index) Entry(id string) (*domain.BibliographyEntry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Entries returns all entries in bibliography order.
func (ix *Index) Entries() []*domain.BibliographyEntry {
	out := make([]*domain.BibliographyEntry, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.entries[id])
	}
	return out
}

// ByNumber returns the entry holding the given reference number.
func (ix *Index) ByNumber(n int) (string, bool) {
	id, ok := ix.byNumber[n]
	return id, ok
}

// Numbers returns how many entries carry an explicit number.
func (ix *Index) Numbers() int { return len(ix.byNumber) }

// ByAuthorYear returns entry IDs for a "surname-yeartoken" key.
func (ix *Index) ByAuthorYear(key string) []string {
	return ix.byAuthorYear[key]
}

// ByAuthor returns entry IDs whose author list contains the normalized
// surname.
func (ix *Index) ByAuthor(surname string) []string {
	return ix.byAuthor[surname]
}

// ByIdentifier returns the entry carrying a DOI, arXiv ID, or PMID.
func (ix *Index) ByIdentifier(id string) (string, bool) {
	e, ok := ix.byIdentifier[id]
	return e, ok
}

// YearToken returns the entry's year token ("2018" or "2018a").
func (ix *Index) YearToken(entryID string) string {
	return ix.yearTokens[entryID]
}

// Surnames returns the entry's normalized author surname set.
func (ix *Index) Surnames(entryID string) map[string]struct{} {
	return ix.surnames[entryID]
}
