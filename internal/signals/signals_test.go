package signals

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "journal of advanced research", normalizeName("Journal of Advanced Research"))
	assert.Equal(t, "int l journal of science", normalizeName("Int'l. Journal-of  Science!"))
	assert.Empty(t, normalizeName("---"))
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRetractionDataset(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "retractions.csv",
		"title,doi,reason\nA flawed study,10.1000/BAD,data fabrication\nAnother one,,plagiarism\n")

	entries, err := LoadRetractionDataset(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "10.1000/BAD", entries[0].DOI)
	assert.Equal(t, "A flawed study", entries[0].Title)
	assert.Equal(t, "data fabrication", entries[0].Reason)
	assert.Empty(t, entries[1].DOI)
}

type stubRetractionAPI struct {
	retracted bool
	reason    string
	err       error
	calls     int
}

func (s *stubRetractionAPI) IsRetracted(context.Context, string) (bool, string, error) {
	s.calls++
	return s.retracted, s.reason, s.err
}

func TestRetractionChecker_Check(t *testing.T) {
	t.Parallel()

	dataset := []RetractionEntry{{DOI: "10.1000/bad", Title: "A Flawed Study", Reason: "data fabrication"}}

	t.Run("dataset DOI hit is high confidence", func(t *testing.T) {
		t.Parallel()
		c := NewRetractionChecker(dataset)
		signal := c.Check(context.Background(), &domain.BibliographyEntry{
			ID:          "R1",
			Identifiers: domain.WorkIdentifiers{DOI: "10.1000/bad"},
		})
		assert.True(t, signal.Retracted)
		assert.Equal(t, TierHigh, signal.Tier)
		assert.Equal(t, []string{"dataset"}, signal.Sources)
		assert.Equal(t, "data fabrication", signal.Reason)
	})

	t.Run("dataset title hit works without a DOI", func(t *testing.T) {
		t.Parallel()
		c := NewRetractionChecker(dataset)
		signal := c.Check(context.Background(), &domain.BibliographyEntry{ID: "R1", Title: "a flawed study"})
		assert.True(t, signal.Retracted)
		assert.Equal(t, TierHigh, signal.Tier)
	})

	t.Run("lone metadata flag needs review", func(t *testing.T) {
		t.Parallel()
		c := NewRetractionChecker(nil)
		signal := c.Check(context.Background(), &domain.BibliographyEntry{
			ID:       "R1",
			Resolved: &domain.ResolvedWork{IsRetracted: true},
		})
		assert.True(t, signal.Retracted)
		assert.Equal(t, TierReviewNeeded, signal.Tier)
	})

	t.Run("metadata plus API is high confidence", func(t *testing.T) {
		t.Parallel()
		api := &stubRetractionAPI{retracted: true, reason: "notice issued"}
		c := NewRetractionChecker(nil, WithRetractionAPI(api))
		signal := c.Check(context.Background(), &domain.BibliographyEntry{
			ID:       "R1",
			Resolved: &domain.ResolvedWork{IsRetracted: true, Identifiers: domain.WorkIdentifiers{DOI: "10.1000/x"}},
		})
		assert.True(t, signal.Retracted)
		assert.Equal(t, TierHigh, signal.Tier)
		assert.Equal(t, []string{"metadata", "api"}, signal.Sources)
		assert.Equal(t, "notice issued", signal.Reason)
	})

	t.Run("API error degrades to remaining sources", func(t *testing.T) {
		t.Parallel()
		api := &stubRetractionAPI{err: assert.AnError}
		c := NewRetractionChecker(nil, WithRetractionAPI(api))
		signal := c.Check(context.Background(), &domain.BibliographyEntry{
			ID:          "R1",
			Identifiers: domain.WorkIdentifiers{DOI: "10.1000/x"},
		})
		assert.False(t, signal.Retracted)
	})

	t.Run("clean entry yields no signal", func(t *testing.T) {
		t.Parallel()
		c := NewRetractionChecker(dataset)
		signal := c.Check(context.Background(), &domain.BibliographyEntry{ID: "R1", Title: "A sound study"})
		assert.False(t, signal.Retracted)
		assert.Empty(t, signal.Sources)
	})
}

func TestLoadPredatoryDataset(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, "predatory.csv",
		"name,confidence\nJournal of Advanced Research Innovations,0.95\nOpen Science Letters,\n")

	entries, err := LoadPredatoryDataset(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0.95, entries[0].Confidence)
	assert.Equal(t, 1.0, entries[1].Confidence, "missing confidence defaults to 1.0")
}

type stubPredatoryAPI struct {
	listed     bool
	confidence float64
	err        error
}

func (s *stubPredatoryAPI) IsPredatory(context.Context, string) (bool, float64, error) {
	return s.listed, s.confidence, s.err
}

func TestPredatoryChecker_Check(t *testing.T) {
	t.Parallel()

	dataset := []PredatoryEntry{
		{Name: "Journal of Advanced Research Innovations", Confidence: 0.95},
		{Name: "Open Science Letters", Confidence: 0.5},
	}

	t.Run("exact high-confidence list hit is asserted", func(t *testing.T) {
		t.Parallel()
		c := NewPredatoryChecker(dataset)
		signal := c.Check(context.Background(), "journal of advanced research innovations")
		assert.True(t, signal.Predatory)
		assert.Equal(t, TierHigh, signal.Tier)
		assert.Equal(t, []string{"list"}, signal.Sources)
	})

	t.Run("low-confidence list hit needs review", func(t *testing.T) {
		t.Parallel()
		c := NewPredatoryChecker(dataset)
		signal := c.Check(context.Background(), "Open Science Letters")
		assert.True(t, signal.Predatory)
		assert.Equal(t, TierReviewNeeded, signal.Tier)
	})

	t.Run("fuzzy hit is flagged for review", func(t *testing.T) {
		t.Parallel()
		c := NewPredatoryChecker(dataset)
		signal := c.Check(context.Background(), "Journal of Advanced Research Innovation")
		assert.True(t, signal.Predatory)
		assert.Equal(t, TierReviewNeeded, signal.Tier)
		assert.Equal(t, []string{"list_fuzzy"}, signal.Sources)
		assert.Equal(t, "Journal of Advanced Research Innovations", signal.MatchedName)
	})

	t.Run("two sources agreeing is high confidence", func(t *testing.T) {
		t.Parallel()
		api := &stubPredatoryAPI{listed: true, confidence: 0.6}
		c := NewPredatoryChecker(dataset, WithPredatoryAPI(api))
		signal := c.Check(context.Background(), "Open Science Letters")
		assert.True(t, signal.Predatory)
		assert.Equal(t, TierHigh, signal.Tier)
		assert.Equal(t, []string{"list", "api"}, signal.Sources)
	})

	t.Run("unlisted venue yields no signal", func(t *testing.T) {
		t.Parallel()
		c := NewPredatoryChecker(dataset)
		signal := c.Check(context.Background(), "Nature")
		assert.False(t, signal.Predatory)
	})

	t.Run("empty venue yields no signal", func(t *testing.T) {
		t.Parallel()
		c := NewPredatoryChecker(dataset)
		signal := c.Check(context.Background(), "")
		assert.False(t, signal.Predatory)
	})
}
