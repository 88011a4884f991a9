package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/checks"
	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/metasources"
)

const numberedManuscript = `Prior work established the effect [1]. Later studies confirmed it [2].

References

[1] Smith, J. (2020). A foundational result. Journal of Results. doi:10.1000/alpha
[2] Jones, M. (2021). A confirmation study. Journal of Checks. doi:10.1000/beta
`

const unnumberedManuscript = `Prior work established the effect [1]. Later studies confirmed it [2].

References

Smith, J. (2020). A foundational result. Journal of Results.

Jones, M. (2021). A confirmation study. Journal of Checks.
`

type fakeSource struct {
	mu      sync.Mutex
	name    string
	byDOI   map[string]*domain.ResolvedWork
	lookups int
}

func (f *fakeSource) LookupByIdentifier(_ context.Context, ids domain.WorkIdentifiers) (*domain.ResolvedWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if ids.DOI == "" {
		return nil, domain.ErrNoIdentifier
	}
	work, ok := f.byDOI[ids.DOI]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *work
	return &clone, nil
}

func (f *fakeSource) Search(context.Context, metasources.SearchQuery) ([]*domain.ResolvedWork, error) {
	return nil, nil
}

func (f *fakeSource) Name() string    { return f.name }
func (f *fakeSource) IsEnabled() bool { return true }

func testChain(sources ...metasources.MetadataSource) *metasources.Chain {
	chain := metasources.NewChain()
	for _, s := range sources {
		chain.Register(s)
	}
	return chain
}

func resolvingSource() *fakeSource {
	return &fakeSource{
		name: "openalex",
		byDOI: map[string]*domain.ResolvedWork{
			"10.1000/alpha": {
				Source:      "openalex",
				Title:       "A foundational result",
				Year:        2020,
				Venue:       "Journal of Results",
				Identifiers: domain.WorkIdentifiers{DOI: "10.1000/alpha", OpenAlexID: "W1"},
			},
			"10.1000/beta": {
				Source:      "openalex",
				Title:       "A confirmation study",
				Year:        2021,
				Venue:       "Journal of Checks",
				Identifiers: domain.WorkIdentifiers{DOI: "10.1000/beta", OpenAlexID: "W2"},
			},
		},
	}
}

func TestEngine_Analyze(t *testing.T) {
	t.Parallel()

	e := New(testChain(resolvingSource()), Config{})
	report, err := e.Analyze(context.Background(), numberedManuscript)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, report.RunID)
	assert.False(t, report.GeneratedAt.IsZero())
	assert.Equal(t, domain.SystemNumeric, report.System)

	require.Len(t, report.Mentions, 2)
	require.Len(t, report.Bibliography, 2)
	require.Len(t, report.Matches, 2)
	for _, m := range report.Matches {
		assert.Equal(t, domain.MatchByNumber, m.Method)
		assert.Equal(t, 1.0, m.Confidence)
	}
	for _, entry := range report.Bibliography {
		require.NotNil(t, entry.Resolved)
		assert.Equal(t, 1.0, entry.Resolved.Confidence)
	}

	assert.Empty(t, report.Issues)
	assert.Empty(t, report.IssueCounts)
	assert.False(t, report.BrokenNumbering.Detected)
	assert.Zero(t, report.BudgetSpent)
	assert.False(t, report.BudgetExhausted)
	assert.Nil(t, report.Deep, "deep analysis is off by default")
}

func TestEngine_Analyze_UnresolvedEntriesFlagged(t *testing.T) {
	t.Parallel()

	empty := &fakeSource{name: "openalex", byDOI: map[string]*domain.ResolvedWork{}}
	e := New(testChain(empty), Config{})

	report, err := e.Analyze(context.Background(), numberedManuscript)
	require.NoError(t, err)

	require.Len(t, report.Issues, 2)
	for _, issue := range report.Issues {
		assert.Equal(t, domain.IssueUnresolvedRef, issue.Kind)
	}
	assert.Equal(t, 2, report.IssueCounts[domain.IssueUnresolvedRef])
}

func TestEngine_Analyze_BrokenNumberingDisclosed(t *testing.T) {
	t.Parallel()

	e := New(testChain(resolvingSource()), Config{})
	report, err := e.Analyze(context.Background(), unnumberedManuscript)
	require.NoError(t, err)

	assert.True(t, report.BrokenNumbering.Detected)
	require.Len(t, report.Matches, 2)
	for _, m := range report.Matches {
		assert.Equal(t, domain.MatchByPosition, m.Method)
	}
}

func TestEngine_Analyze_MandatoryCheckFailsDocument(t *testing.T) {
	t.Parallel()

	e := New(testChain(resolvingSource()), Config{
		Checks: checks.Config{AppropriatenessMandatory: true},
	})

	_, err := e.Analyze(context.Background(), numberedManuscript)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMandatoryCheck)
}

func TestEngine_Analyze_DeepWithoutEnumerator(t *testing.T) {
	t.Parallel()

	e := New(testChain(resolvingSource()), Config{DeepEnabled: true})
	report, err := e.Analyze(context.Background(), numberedManuscript)
	require.NoError(t, err)

	require.NotNil(t, report.Deep)
	assert.Equal(t, domain.DeepPartial, report.Deep.Status)
	assert.NotEmpty(t, report.Deep.KeyReferenceIDs)
}

func TestEngine_Analyze_ExcludedSourceSkipsChecks(t *testing.T) {
	t.Parallel()

	empty := &fakeSource{name: "openalex", byDOI: map[string]*domain.ResolvedWork{}}
	e := New(testChain(empty), Config{
		Checks: checks.Config{ExcludedReferences: []string{"Journal of Checks"}},
	})

	report, err := e.Analyze(context.Background(), numberedManuscript)
	require.NoError(t, err)

	require.Len(t, report.Bibliography, 2)
	assert.True(t, report.Bibliography[1].Excluded)
	require.Len(t, report.Issues, 1, "the excluded entry generates no unresolved issue")
	assert.Equal(t, "R1", report.Issues[0].EntryID)
}
