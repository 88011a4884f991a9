// Package match links in-text citation atoms to bibliography entries.
// A deterministic cascade handles the clear cases; atoms the cascade
// leaves ambiguous are optionally put to an LLM with their scored
// candidate set, metered against the run's call budget.
package match

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/parse"
	"github.com/helixir/citation-integrity-service/internal/refindex"
)

// Scoring and ambiguity constants for author-date candidates. An atom
// scores against each candidate entry; the rules below decide whether
// the top candidate is accepted outright.
const (
	baseScore        = 0.55
	firstAuthorBonus = 0.10
	yearTokenBonus   = 0.18
	yearExactBonus   = 0.14
	yearNearbyBonus  = 0.07
	coauthorBonus    = 0.04
	coauthorBonusCap = 0.12

	// acceptThreshold is the minimum top score for a confident match;
	// ambiguityMargin is the minimum lead over the runner-up.
	acceptThreshold = 0.65
	ambiguityMargin = 0.08

	// maxCandidates bounds the evidence kept per ambiguous atom.
	maxCandidates = 5

	// positionConfidence applies when a numeric pointer is resolved by
	// list position because the bibliography carries no numbering.
	positionConfidence = 0.85
)

// Matcher links atoms to entries for one document run. The zero-value
// configuration runs the deterministic cascade only.
type Matcher struct {
	llm    llm.Client
	budget *llm.Budget
	logger zerolog.Logger
	memo   map[memoKey]*disambiguation
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLLM enables LLM disambiguation of ambiguous atoms.
func WithLLM(client llm.Client, budget *llm.Budget) Option {
	return func(m *Matcher) {
		m.llm = client
		m.budget = budget
	}
}

// WithLogger sets the matcher's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Matcher) {
		m.logger = logger
	}
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		logger: zerolog.Nop(),
		memo:   make(map[memoKey]*disambiguation),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match links every atom in the document's mentions to bibliography
// entries. Results come back in mention order, one per atom.
func (m *Matcher) Match(ctx context.Context, doc *parse.Document, ix *refindex.Index) []domain.MatchResult {
	var results []domain.MatchResult
	for _, mention := range doc.Mentions {
		for _, atom := range mention.Atoms {
			result := m.matchAtom(mention, atom, ix)
			if result.Ambiguous {
				m.disambiguate(ctx, mention, &result, ix)
			}
			results = append(results, result)
		}
	}
	return results
}

func (m *Matcher) matchAtom(mention domain.CitationMention, atom domain.CitationAtom, ix *refindex.Index) domain.MatchResult {
	result := domain.MatchResult{
		MentionID: mention.ID,
		Atom:      atom,
		Method:    domain.MatchNone,
	}

	if atom.Number > 0 {
		m.matchNumeric(atom, ix, &result)
		return result
	}
	if atom.AuthorToken != "" {
		m.matchAuthorYear(mention, atom, ix, &result)
	}
	return result
}

// matchNumeric resolves a numeric or note pointer. Position inference
// applies only when the bibliography carries no numbering at all; with
// partial numbering a missing number stays unmatched so broken lists
// surface as issues instead of silently shifting every pointer.
func (m *Matcher) matchNumeric(atom domain.CitationAtom, ix *refindex.Index, result *domain.MatchResult) {
	if id, ok := ix.ByNumber(atom.Number); ok {
		result.EntryID = id
		result.Method = domain.MatchByNumber
		result.Confidence = 1.0
		return
	}
	if ix.Numbers() == 0 && atom.Number <= ix.Len() {
		result.EntryID = ix.IDs()[atom.Number-1]
		result.Method = domain.MatchByPosition
		result.Confidence = positionConfidence
	}
}

func (m *Matcher) matchAuthorYear(mention domain.CitationMention, atom domain.CitationAtom, ix *refindex.Index, result *domain.MatchResult) {
	candidates, method := m.cascade(atom, ix)
	if len(candidates) == 0 {
		return
	}

	scored := m.scoreCandidates(atom, candidates, ix)

	top := scored[0]
	ambiguous := top.Score < acceptThreshold
	if len(scored) > 1 && top.Score-scored[1].Score < ambiguityMargin {
		ambiguous = true
	}

	if len(scored) > maxCandidates {
		scored = scored[:maxCandidates]
	}

	if ambiguous {
		result.Ambiguous = true
		result.Candidates = scored
		result.Confidence = top.Score
		return
	}

	result.EntryID = top.EntryID
	result.Method = method
	result.Confidence = top.Score
	result.Candidates = scored
}

// cascade walks the author-date lookup stages from strongest to
// weakest and returns the first stage's candidates.
func (m *Matcher) cascade(atom domain.CitationAtom, ix *refindex.Index) ([]string, domain.MatchMethod) {
	key := atom.AuthorYearKey()
	if key == "" {
		return nil, domain.MatchNone
	}

	if ids := ix.ByAuthorYear(key); len(ids) > 0 {
		return ids, domain.MatchAuthorYearExact
	}

	if atom.Suffix != "" {
		plain := parse.NormalizeAuthorYearKey(atom.AuthorToken, atom.YearToken()[:4])
		if ids := ix.ByAuthorYear(plain); len(ids) > 0 {
			return ids, domain.MatchAuthorYearSuffix
		}
	}

	var nearby []string
	for _, delta := range []int{-1, 1} {
		k := parse.NormalizeAuthorYearKey(atom.AuthorToken, yearString(atom.Year+delta))
		for _, id := range ix.ByAuthorYear(k) {
			nearby = appendUnique(nearby, id)
		}
	}
	if len(nearby) > 0 {
		return nearby, domain.MatchAuthorYearNearby
	}

	if ids := ix.ByAuthor(atom.AuthorToken); len(ids) == 1 {
		return ids, domain.MatchAuthorOnly
	}

	return nil, domain.MatchNone
}

// scoreCandidates scores each candidate against the atom and sorts
// descending, breaking ties by bibliography order for determinism.
func (m *Matcher) scoreCandidates(atom domain.CitationAtom, ids []string, ix *refindex.Index) []domain.MatchCandidate {
	position := make(map[string]int, ix.Len())
	for i, id := range ix.IDs() {
		position[id] = i
	}

	out := make([]domain.MatchCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.MatchCandidate{
			EntryID: id,
			Score:   m.scoreCandidate(atom, id, ix),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return position[out[i].EntryID] < position[out[j].EntryID]
	})
	return out
}

func (m *Matcher) scoreCandidate(atom domain.CitationAtom, entryID string, ix *refindex.Index) float64 {
	entry, ok := ix.Entry(entryID)
	if !ok {
		return 0
	}

	score := baseScore
	if entry.FirstAuthor != "" && entry.FirstAuthor == atom.AuthorToken {
		score += firstAuthorBonus
	}

	switch {
	case atom.YearToken() != "" && atom.YearToken() == ix.YearToken(entryID):
		score += yearTokenBonus
	case atom.Year != 0 && atom.Year == entry.Year:
		score += yearExactBonus
	case atom.Year != 0 && entry.Year != 0 && abs(atom.Year-entry.Year) == 1:
		score += yearNearbyBonus
	}

	if bonus := coauthorBonus * float64(m.coauthorHits(atom, entryID, ix)); bonus > 0 {
		if bonus > coauthorBonusCap {
			bonus = coauthorBonusCap
		}
		score += bonus
	}
	return score
}

// coauthorHits counts surnames written alongside the first author in
// the citation ("Smith and Jones") that also appear in the entry's
// author list. The first author itself does not count.
func (m *Matcher) coauthorHits(atom domain.CitationAtom, entryID string, ix *refindex.Index) int {
	if atom.RawAuthor == "" {
		return 0
	}
	surnames := ix.Surnames(entryID)
	hits := 0
	for _, tok := range surnameTokens(atom.RawAuthor) {
		if tok == atom.AuthorToken {
			continue
		}
		if _, ok := surnames[tok]; ok {
			hits++
		}
	}
	return hits
}

// surnameTokens splits a raw citation author segment into normalized
// surname tokens, dropping connectives.
func surnameTokens(raw string) []string {
	var out []string
	for _, field := range strings.Fields(raw) {
		tok := parse.NormalizeAuthorName(field)
		switch tok {
		case "", "et", "al", "and":
			continue
		}
		out = append(out, tok)
	}
	return out
}

func yearString(year int) string {
	if year <= 0 {
		return ""
	}
	return strconv.Itoa(year)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
