package deep

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/metasources"
)

const (
	// defaultRefsPerWork caps outgoing references pulled per fetched work.
	defaultRefsPerWork = 50

	// maxSecondHopSeeds bounds the second-hop waves so a single dense
	// key reference cannot dominate the fetch budget.
	maxSecondHopSeeds = 40
)

// PoolStats summarizes how the literature pool was assembled.
type PoolStats struct {
	WavesRun       int `json:"waves_run"`
	CitedByKeys    int `json:"cited_by_keys"`
	CitedSecondHop int `json:"cited_second_hop"`
	CitingKeys     int `json:"citing_keys"`
	CitedByCiting  int `json:"cited_by_citing"`
	CitingCoupling int `json:"citing_coupling"`

	// SkippedFetches counts enumeration calls that failed and were
	// dropped rather than aborting the expansion.
	SkippedFetches int `json:"skipped_fetches,omitempty"`
}

// Expander grows the graph around the key references in up to five
// waves: works cited by keys, their second hop, works citing keys
// (most recent first, capped per key), works cited by those, and
// works citing the first-hop pool.
type Expander struct {
	enum        metasources.CitationEnumerator
	concurrency int
	citingCap   int
	refsPerWork int
	maxWaves    int
	exclude     func(venue string) bool
	logger      zerolog.Logger
}

// NewExpander creates an expander over a citation-enumerating source.
// exclude may be nil; it filters fetched works by venue at insertion.
func NewExpander(enum metasources.CitationEnumerator, maxWaves, citingCap, concurrency int, exclude func(string) bool, logger zerolog.Logger) *Expander {
	if maxWaves <= 0 {
		maxWaves = 5
	}
	if citingCap <= 0 {
		citingCap = 100
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Expander{
		enum:        enum,
		concurrency: concurrency,
		citingCap:   citingCap,
		refsPerWork: defaultRefsPerWork,
		maxWaves:    maxWaves,
		exclude:     exclude,
		logger:      logger,
	}
}

// Expand grows the graph from the key-reference seeds and returns the
// pool statistics. Seeds must already be graph nodes; seeds without a
// provider identifier are skipped by the caller. Fetches run
// concurrently per wave, but nodes and edges are inserted in seed
// order so the resulting graph is identical across interleavings.
func (e *Expander) Expand(ctx context.Context, g *Graph, seeds []string) (PoolStats, error) {
	var stats PoolStats

	type wave struct {
		name    string
		citing  bool
		seedsOf func() []string
		count   *int
	}

	var firstHop []string
	var citingHop []string

	waves := []wave{
		{name: "cited_by_keys", seedsOf: func() []string { return seeds }, count: &stats.CitedByKeys},
		{name: "cited_second_hop", seedsOf: func() []string { return capSeeds(firstHop) }, count: &stats.CitedSecondHop},
		{name: "citing_keys", citing: true, seedsOf: func() []string { return seeds }, count: &stats.CitingKeys},
		{name: "cited_by_citing", seedsOf: func() []string { return capSeeds(citingHop) }, count: &stats.CitedByCiting},
		{name: "citing_coupling", citing: true, seedsOf: func() []string { return capSeeds(firstHop) }, count: &stats.CitingCoupling},
	}
	if len(waves) > e.maxWaves {
		waves = waves[:e.maxWaves]
	}

	for i, w := range waves {
		if g.Full() {
			break
		}
		waveSeeds := w.seedsOf()
		if len(waveSeeds) == 0 {
			continue
		}
		added, skipped, err := e.runWave(ctx, g, waveSeeds, w.citing)
		if err != nil {
			return stats, err
		}
		*w.count = len(added)
		stats.SkippedFetches += skipped
		stats.WavesRun = i + 1

		switch w.name {
		case "cited_by_keys":
			firstHop = added
		case "citing_keys":
			citingHop = added
		}
	}
	return stats, nil
}

// runWave fetches one wave concurrently and merges results in seed
// order. Returns the node ids newly added by this wave.
func (e *Expander) runWave(ctx context.Context, g *Graph, seeds []string, citing bool) (added []string, skipped int, err error) {
	results := make([][]*domain.ResolvedWork, len(seeds))
	var failures atomic.Int64

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for i, seed := range seeds {
		group.Go(func() error {
			var works []*domain.ResolvedWork
			var ferr error
			if citing {
				works, ferr = e.enum.CitingWorks(gctx, seed, e.citingCap)
			} else {
				works, ferr = e.enum.CitedWorks(gctx, seed, e.refsPerWork)
			}
			if ferr != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Debug().Err(ferr).Str("seed", seed).Msg("enumeration fetch dropped")
				failures.Add(1)
				return nil
			}
			results[i] = works
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, int(failures.Load()), err
	}

	for i, seed := range seeds {
		for _, work := range results[i] {
			id := nodeIDForWork(work)
			if id == "" {
				continue
			}
			if e.exclude != nil && work.Venue != "" && e.exclude(work.Venue) {
				continue
			}
			known := g.Contains(id)
			if !known {
				if _, ok := g.AddNode(id); !ok {
					break
				}
				added = append(added, id)
			}
			if citing {
				g.AddEdge(id, seed)
			} else {
				g.AddEdge(seed, id)
			}
		}
		if g.Full() {
			break
		}
	}
	return added, int(failures.Load()), nil
}

// nodeIDForWork returns the graph identity of a fetched work, or ""
// when the work carries no usable identifier.
func nodeIDForWork(work *domain.ResolvedWork) string {
	if work == nil {
		return ""
	}
	if id := work.Identifiers.OpenAlexID; id != "" {
		return id
	}
	return work.CanonicalID()
}

func capSeeds(seeds []string) []string {
	if len(seeds) > maxSecondHopSeeds {
		return seeds[:maxSecondHopSeeds]
	}
	return seeds
}
