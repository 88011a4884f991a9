package deep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/parse"
)

func deepDoc() *parse.Document {
	return &parse.Document{
		Body: sectionBody,
		Mentions: []domain.CitationMention{
			{ID: "M1", Context: "Citations matter for attribution."},
			{ID: "M2", Context: "We parsed manuscripts."},
			{ID: "M3", Context: "Most citations checked out."},
		},
		Bibliography: []domain.BibliographyEntry{
			{ID: "R1", Resolved: &domain.ResolvedWork{
				Title: "Alpha", Year: 2018, Confidence: 0.95,
				Identifiers: domain.WorkIdentifiers{OpenAlexID: "W1"},
			}},
			{ID: "R2", Resolved: &domain.ResolvedWork{
				Title: "Beta", Year: 2020, Confidence: 0.95,
				Identifiers: domain.WorkIdentifiers{OpenAlexID: "W2"},
			}},
			{ID: "R3", Resolved: &domain.ResolvedWork{
				Title: "Gamma", Year: 2016, Confidence: 0.40,
			}},
			{ID: "R4", Excluded: true, Resolved: &domain.ResolvedWork{
				Title: "Delta", Year: 2019, Confidence: 0.95,
			}},
		},
	}
}

func deepMatches() []domain.MatchResult {
	return []domain.MatchResult{
		{MentionID: "M1", EntryID: "R1", Method: domain.MatchByNumber, Confidence: 1.0},
		{MentionID: "M2", EntryID: "R1", Method: domain.MatchByNumber, Confidence: 1.0},
		{MentionID: "M3", EntryID: "R2", Method: domain.MatchByNumber, Confidence: 1.0},
	}
}

func TestEngine_Analyze(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited: map[string][]string{
			"W1": {"W5", "W6"},
			"W5": {"W6"},
		},
		citing: map[string][]string{
			"W1": {"W7"},
		},
	}

	e := New(enum, Config{})
	result := e.Analyze(context.Background(), deepDoc(), deepMatches())
	require.NotNil(t, result)

	assert.Equal(t, domain.DeepCompleted, result.Status)
	assert.Empty(t, result.Reason)
	assert.Equal(t, []string{"R1"}, result.KeyReferenceIDs, "ceil(2/2)=1 key, most cited first")

	assert.Equal(t, 5, result.Graph.NodeCount, "W1, W2, W5, W6, W7")
	assert.Positive(t, result.Graph.EdgeCount)
	assert.False(t, result.Graph.Truncated)

	assert.NotEmpty(t, result.Categories.HighlyConnected)
	assert.Equal(t, []string{"opening", "Introduction", "Methods", "Results"}, result.SectionTitles)
	assert.Equal(t, "completed", result.Recommendations.Status)
}

func TestEngine_Analyze_Statuses(t *testing.T) {
	t.Parallel()

	t.Run("no verified references", func(t *testing.T) {
		t.Parallel()
		e := New(nil, Config{})
		doc := &parse.Document{Bibliography: []domain.BibliographyEntry{{ID: "R1"}}}
		result := e.Analyze(context.Background(), doc, nil)
		assert.Equal(t, domain.DeepSkipped, result.Status)
	})

	t.Run("too many verified references", func(t *testing.T) {
		t.Parallel()
		e := New(nil, Config{MaxOriginalRefs: 1})
		result := e.Analyze(context.Background(), deepDoc(), deepMatches())
		assert.Equal(t, domain.DeepSkipped, result.Status)
	})

	t.Run("no enumerator yields a partial result", func(t *testing.T) {
		t.Parallel()
		e := New(nil, Config{})
		result := e.Analyze(context.Background(), deepDoc(), deepMatches())
		assert.Equal(t, domain.DeepPartial, result.Status)
		assert.Contains(t, result.Reason, "no citation-enumerating source")
		assert.NotEmpty(t, result.KeyReferenceIDs, "selection still runs over the document's own references")
		assert.Equal(t, 2, result.Graph.NodeCount)
	})

	t.Run("failed fetches degrade to partial", func(t *testing.T) {
		t.Parallel()
		enum := &fakeEnumerator{
			cited:  map[string][]string{},
			citing: map[string][]string{},
			failOn: map[string]bool{"W1": true},
		}
		e := New(enum, Config{})
		result := e.Analyze(context.Background(), deepDoc(), deepMatches())
		assert.Equal(t, domain.DeepPartial, result.Status)
		assert.Contains(t, result.Reason, "fetches failed")
	})

	t.Run("truncated graph degrades to partial", func(t *testing.T) {
		t.Parallel()
		enum := &fakeEnumerator{
			cited:  map[string][]string{"W1": {"W5", "W6", "W7", "W8"}},
			citing: map[string][]string{},
		}
		e := New(enum, Config{MaxNodes: 3})
		result := e.Analyze(context.Background(), deepDoc(), deepMatches())
		assert.Equal(t, domain.DeepPartial, result.Status)
		assert.True(t, result.Graph.Truncated)
	})
}

func TestEngine_Analyze_TangentialRecommendation(t *testing.T) {
	t.Parallel()

	// R2 never connects to the key reference's neighbourhood, so the
	// network heuristic should suggest reassessing it.
	enum := &fakeEnumerator{
		cited:  map[string][]string{"W1": {"W5"}},
		citing: map[string][]string{},
	}
	e := New(enum, Config{})
	result := e.Analyze(context.Background(), deepDoc(), deepMatches())
	require.Equal(t, domain.DeepCompleted, result.Status)

	var actions []domain.RecommendationItem
	actions = append(actions, result.Recommendations.GlobalActions...)
	for _, s := range result.Recommendations.Sections {
		actions = append(actions, s.Actions...)
	}
	require.NotEmpty(t, actions)

	found := false
	for _, a := range actions {
		if a.ActionType == domain.ActionReconsider {
			for _, id := range a.RefIDs {
				if id == "R2" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "tangential reference surfaces as a reconsider action")
}

func TestVerifiedEntries(t *testing.T) {
	t.Parallel()

	doc := deepDoc()
	verified := verifiedEntries(doc.Bibliography)
	require.Len(t, verified, 2)
	assert.Equal(t, "R1", verified[0].ID)
	assert.Equal(t, "R2", verified[1].ID, "low confidence and excluded entries drop out")
}

func TestCitationStats(t *testing.T) {
	t.Parallel()

	counts, contexts := citationStats(deepMatches(), deepDoc().Mentions)
	assert.Equal(t, 2, counts["R1"])
	assert.Equal(t, 1, counts["R2"])
	assert.Equal(t, "Citations matter for attribution.", contexts["R1"], "first mention context wins")
}
