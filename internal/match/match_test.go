package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/parse"
	"github.com/helixir/citation-integrity-service/internal/refindex"
)

func numberedIndex() *refindex.Index {
	return refindex.Build([]domain.BibliographyEntry{
		{ID: "R1", Raw: "[1] Merton, R. K. (1968).", Number: 1, FirstAuthor: "merton", Authors: []string{"Merton, R. K."}, Year: 1968},
		{ID: "R2", Raw: "[2] Rigney, D. (2010).", Number: 2, FirstAuthor: "rigney", Authors: []string{"Rigney, D."}, Year: 2010},
	})
}

func docWith(atoms ...domain.CitationAtom) *parse.Document {
	return &parse.Document{
		Mentions: []domain.CitationMention{{
			ID:      "M1",
			Raw:     "test mention",
			Context: "A sentence containing the test mention.",
			Atoms:   atoms,
		}},
	}
}

func TestMatcher_Numeric(t *testing.T) {
	t.Parallel()

	t.Run("direct number match", func(t *testing.T) {
		t.Parallel()
		results := New().Match(context.Background(), docWith(domain.CitationAtom{Number: 2}), numberedIndex())
		require.Len(t, results, 1)
		assert.Equal(t, "R2", results[0].EntryID)
		assert.Equal(t, domain.MatchByNumber, results[0].Method)
		assert.Equal(t, 1.0, results[0].Confidence)
	})

	t.Run("missing number in a numbered list stays unmatched", func(t *testing.T) {
		t.Parallel()
		results := New().Match(context.Background(), docWith(domain.CitationAtom{Number: 9}), numberedIndex())
		require.Len(t, results, 1)
		assert.False(t, results[0].Matched())
		assert.Equal(t, domain.MatchNone, results[0].Method)
	})

	t.Run("unnumbered list falls back to position", func(t *testing.T) {
		t.Parallel()
		ix := refindex.Build([]domain.BibliographyEntry{
			{ID: "R1", FirstAuthor: "merton", Year: 1968},
			{ID: "R2", FirstAuthor: "rigney", Year: 2010},
		})
		results := New().Match(context.Background(), docWith(domain.CitationAtom{Number: 2}), ix)
		require.Len(t, results, 1)
		assert.Equal(t, "R2", results[0].EntryID)
		assert.Equal(t, domain.MatchByPosition, results[0].Method)
		assert.InDelta(t, 0.85, results[0].Confidence, 1e-9)
	})
}

func TestMatcher_AuthorYearCascade(t *testing.T) {
	t.Parallel()

	t.Run("exact author-year", func(t *testing.T) {
		t.Parallel()
		atom := domain.CitationAtom{AuthorToken: "merton", RawAuthor: "Merton", Year: 1968}
		results := New().Match(context.Background(), docWith(atom), numberedIndex())
		require.Len(t, results, 1)
		assert.Equal(t, "R1", results[0].EntryID)
		assert.Equal(t, domain.MatchAuthorYearExact, results[0].Method)
		// base + first author + exact year token
		assert.InDelta(t, 0.83, results[0].Confidence, 1e-9)
	})

	t.Run("suffix ignored when the entry has no suffix", func(t *testing.T) {
		t.Parallel()
		atom := domain.CitationAtom{AuthorToken: "rigney", RawAuthor: "Rigney", Year: 2010, Suffix: "b"}
		results := New().Match(context.Background(), docWith(atom), numberedIndex())
		require.Len(t, results, 1)
		assert.Equal(t, "R2", results[0].EntryID)
		assert.Equal(t, domain.MatchAuthorYearSuffix, results[0].Method)
	})

	t.Run("nearby year within one", func(t *testing.T) {
		t.Parallel()
		atom := domain.CitationAtom{AuthorToken: "rigney", RawAuthor: "Rigney", Year: 2011}
		results := New().Match(context.Background(), docWith(atom), numberedIndex())
		require.Len(t, results, 1)
		assert.Equal(t, "R2", results[0].EntryID)
		assert.Equal(t, domain.MatchAuthorYearNearby, results[0].Method)
		// base + first author + nearby year
		assert.InDelta(t, 0.72, results[0].Confidence, 1e-9)
	})

	t.Run("author only when unique", func(t *testing.T) {
		t.Parallel()
		atom := domain.CitationAtom{AuthorToken: "merton", RawAuthor: "Merton", Year: 1972}
		results := New().Match(context.Background(), docWith(atom), numberedIndex())
		require.Len(t, results, 1)
		assert.Equal(t, "R1", results[0].EntryID)
		assert.Equal(t, domain.MatchAuthorOnly, results[0].Method)
		assert.InDelta(t, 0.65, results[0].Confidence, 1e-9)
	})

	t.Run("unknown author stays unmatched", func(t *testing.T) {
		t.Parallel()
		atom := domain.CitationAtom{AuthorToken: "nobody", RawAuthor: "Nobody", Year: 2020}
		results := New().Match(context.Background(), docWith(atom), numberedIndex())
		require.Len(t, results, 1)
		assert.False(t, results[0].Matched())
	})
}

func suffixedIndex() *refindex.Index {
	return refindex.Build([]domain.BibliographyEntry{
		{ID: "R1", Raw: "Bol, T. (2018a). Funding effects.", FirstAuthor: "bol", Authors: []string{"Bol, T."}, Year: 2018},
		{ID: "R2", Raw: "Bol, T. (2018b). Replication.", FirstAuthor: "bol", Authors: []string{"Bol, T."}, Year: 2018},
	})
}

func TestMatcher_Ambiguity(t *testing.T) {
	t.Parallel()

	// "(Bol, 2018)" with both 2018a and 2018b on file scores the two
	// candidates identically.
	atom := domain.CitationAtom{AuthorToken: "bol", RawAuthor: "Bol", Year: 2018}
	results := New().Match(context.Background(), docWith(atom), suffixedIndex())
	require.Len(t, results, 1)

	result := results[0]
	assert.True(t, result.Ambiguous)
	assert.False(t, result.Matched())
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "R1", result.Candidates[0].EntryID, "ties break by bibliography order")
	assert.InDelta(t, result.Candidates[0].Score, result.Candidates[1].Score, 1e-9)
}

func TestScoreCandidate_CoauthorBonus(t *testing.T) {
	t.Parallel()

	ix := refindex.Build([]domain.BibliographyEntry{
		{ID: "R1", FirstAuthor: "smith", Authors: []string{"Smith, J.", "Jones, K."}, Year: 2020},
		{ID: "R2", FirstAuthor: "smith", Authors: []string{"Smith, J.", "Park, S."}, Year: 2020},
	})

	m := New()
	atom := domain.CitationAtom{AuthorToken: "smith", RawAuthor: "Smith and Jones", Year: 2020}

	withCoauthor := m.scoreCandidate(atom, "R1", ix)
	without := m.scoreCandidate(atom, "R2", ix)
	assert.InDelta(t, 0.04, withCoauthor-without, 1e-9)
}

type stubLLM struct {
	content string
	err     error
	calls   int
}

func (s *stubLLM) Complete(_ context.Context, _ llm.Request) (*llm.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Result{Content: s.content}, nil
}

func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) Model() string    { return "stub" }

func TestMatcher_Disambiguation(t *testing.T) {
	t.Parallel()

	atom := domain.CitationAtom{AuthorToken: "bol", RawAuthor: "Bol", Year: 2018}

	t.Run("confident LLM pick promotes the match", func(t *testing.T) {
		t.Parallel()
		stub := &stubLLM{content: `{"best_id": "R2", "confidence": 0.9, "reason": "replication study fits the sentence"}`}
		m := New(WithLLM(stub, llm.Unlimited()))

		results := m.Match(context.Background(), docWith(atom), suffixedIndex())
		require.Len(t, results, 1)
		assert.Equal(t, "R2", results[0].EntryID)
		assert.Equal(t, domain.MatchLLM, results[0].Method)
		assert.False(t, results[0].Ambiguous)
		assert.Equal(t, 0.9, results[0].Confidence)
	})

	t.Run("low confidence keeps the atom ambiguous", func(t *testing.T) {
		t.Parallel()
		stub := &stubLLM{content: `{"best_id": "R2", "confidence": 0.4, "reason": "unclear"}`}
		m := New(WithLLM(stub, llm.Unlimited()))

		results := m.Match(context.Background(), docWith(atom), suffixedIndex())
		require.Len(t, results, 1)
		assert.True(t, results[0].Ambiguous)
		assert.False(t, results[0].Matched())
	})

	t.Run("null pick keeps the atom ambiguous", func(t *testing.T) {
		t.Parallel()
		stub := &stubLLM{content: `{"best_id": null, "confidence": 0.9, "reason": "neither fits"}`}
		m := New(WithLLM(stub, llm.Unlimited()))

		results := m.Match(context.Background(), docWith(atom), suffixedIndex())
		require.Len(t, results, 1)
		assert.True(t, results[0].Ambiguous)
	})

	t.Run("pick outside the candidate set is rejected", func(t *testing.T) {
		t.Parallel()
		stub := &stubLLM{content: `{"best_id": "R99", "confidence": 0.9, "reason": "hallucinated"}`}
		m := New(WithLLM(stub, llm.Unlimited()))

		results := m.Match(context.Background(), docWith(atom), suffixedIndex())
		require.Len(t, results, 1)
		assert.True(t, results[0].Ambiguous)
	})

	t.Run("budget exhaustion skips the call", func(t *testing.T) {
		t.Parallel()
		stub := &stubLLM{content: `{"best_id": "R2", "confidence": 0.9}`}
		m := New(WithLLM(stub, llm.NewBudget(0)))

		results := m.Match(context.Background(), docWith(atom), suffixedIndex())
		require.Len(t, results, 1)
		assert.True(t, results[0].Ambiguous)
		assert.Zero(t, stub.calls)
	})

	t.Run("identical questions are answered once", func(t *testing.T) {
		t.Parallel()
		stub := &stubLLM{content: `{"best_id": "R1", "confidence": 0.9, "reason": "funding context"}`}
		m := New(WithLLM(stub, llm.Unlimited()))

		doc := docWith(atom, atom)
		results := m.Match(context.Background(), doc, suffixedIndex())
		require.Len(t, results, 2)
		assert.Equal(t, "R1", results[0].EntryID)
		assert.Equal(t, "R1", results[1].EntryID)
		assert.Equal(t, 1, stub.calls)
	})
}
