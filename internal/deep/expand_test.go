package deep

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

type fakeEnumerator struct {
	mu     sync.Mutex
	cited  map[string][]string
	citing map[string][]string

	citingLimits []int
	failOn       map[string]bool
}

func poolWork(id string) *domain.ResolvedWork {
	return &domain.ResolvedWork{
		Source:      "openalex",
		Identifiers: domain.WorkIdentifiers{OpenAlexID: id},
		Title:       "Work " + id,
		Venue:       "Venue " + id,
	}
}

func (f *fakeEnumerator) CitedWorks(_ context.Context, id string, limit int) ([]*domain.ResolvedWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[id] {
		return nil, assert.AnError
	}
	var out []*domain.ResolvedWork
	for _, cited := range f.cited[id] {
		if len(out) >= limit {
			break
		}
		out = append(out, poolWork(cited))
	}
	return out, nil
}

func (f *fakeEnumerator) CitingWorks(_ context.Context, id string, limit int) ([]*domain.ResolvedWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.citingLimits = append(f.citingLimits, limit)
	var out []*domain.ResolvedWork
	for _, citing := range f.citing[id] {
		if len(out) >= limit {
			break
		}
		out = append(out, poolWork(citing))
	}
	return out, nil
}

func seededGraph(t *testing.T, maxNodes, maxEdges int, seeds ...string) *Graph {
	t.Helper()
	g := NewGraph(maxNodes, maxEdges)
	for _, s := range seeds {
		_, ok := g.AddNode(s)
		require.True(t, ok)
	}
	return g
}

func TestExpander_FiveWaves(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited: map[string][]string{
			"W1":  {"W2", "W3"},
			"W2":  {"W4"},
			"W10": {"W2"},
		},
		citing: map[string][]string{
			"W1": {"W10"},
			"W2": {"W20"},
		},
	}
	e := NewExpander(enum, 5, 100, 4, nil, zerolog.Nop())

	g := seededGraph(t, 100, 100, "W1")
	stats, err := e.Expand(context.Background(), g, []string{"W1"})
	require.NoError(t, err)

	assert.Equal(t, 5, stats.WavesRun)
	assert.Equal(t, 2, stats.CitedByKeys)
	assert.Equal(t, 1, stats.CitedSecondHop)
	assert.Equal(t, 1, stats.CitingKeys)
	assert.Equal(t, 0, stats.CitedByCiting, "W2 was already in the pool")
	assert.Equal(t, 1, stats.CitingCoupling)
	assert.Zero(t, stats.SkippedFetches)

	assert.Equal(t, []string{"W1", "W2", "W3", "W4", "W10", "W20"}, g.Nodes())
	assert.Equal(t, 6, g.EdgeCount())
	assert.False(t, g.Truncated())
}

func TestExpander_Determinism(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited: map[string][]string{
			"W1": {"W5", "W6"},
			"W2": {"W6", "W7"},
			"W3": {"W8"},
		},
		citing: map[string][]string{},
	}

	var runs [][]string
	for i := 0; i < 3; i++ {
		g := seededGraph(t, 100, 100, "W1", "W2", "W3")
		e := NewExpander(enum, 5, 100, 4, nil, zerolog.Nop())
		_, err := e.Expand(context.Background(), g, []string{"W1", "W2", "W3"})
		require.NoError(t, err)
		runs = append(runs, g.Nodes())
	}
	assert.Equal(t, runs[0], runs[1], "node order is seed-ordered, not completion-ordered")
	assert.Equal(t, runs[1], runs[2])
}

func TestExpander_CitingCapPassedToSource(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited:  map[string][]string{},
		citing: map[string][]string{"W1": {"W10", "W11", "W12"}},
	}
	e := NewExpander(enum, 3, 2, 1, nil, zerolog.Nop())

	g := seededGraph(t, 100, 100, "W1")
	stats, err := e.Expand(context.Background(), g, []string{"W1"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.CitingKeys, "per-key citing works are capped")
	for _, limit := range enum.citingLimits {
		assert.Equal(t, 2, limit)
	}
}

func TestExpander_ExcludedVenueFiltered(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited:  map[string][]string{"W1": {"W2", "W3"}},
		citing: map[string][]string{},
	}
	e := NewExpander(enum, 1, 100, 1, func(venue string) bool { return venue == "Venue W2" }, zerolog.Nop())

	g := seededGraph(t, 100, 100, "W1")
	_, err := e.Expand(context.Background(), g, []string{"W1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"W1", "W3"}, g.Nodes(), "excluded venues never enter the pool")
}

func TestExpander_FailedFetchesAreDropped(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited: map[string][]string{
			"W1": {"W5"},
			"W2": {"W6"},
		},
		failOn: map[string]bool{"W1": true},
		citing: map[string][]string{},
	}
	e := NewExpander(enum, 1, 100, 2, nil, zerolog.Nop())

	g := seededGraph(t, 100, 100, "W1", "W2")
	stats, err := e.Expand(context.Background(), g, []string{"W1", "W2"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.SkippedFetches)
	assert.Equal(t, 1, stats.CitedByKeys)
	assert.True(t, g.Contains("W6"))
	assert.False(t, g.Contains("W5"))
}

func TestExpander_NodeCapStopsExpansion(t *testing.T) {
	t.Parallel()

	enum := &fakeEnumerator{
		cited:  map[string][]string{"W1": {"W2", "W3", "W4", "W5"}},
		citing: map[string][]string{},
	}
	e := NewExpander(enum, 5, 100, 1, nil, zerolog.Nop())

	g := seededGraph(t, 3, 100, "W1")
	_, err := e.Expand(context.Background(), g, []string{"W1"})
	require.NoError(t, err)

	assert.Equal(t, 3, g.NodeCount())
	assert.True(t, g.Truncated())
}
