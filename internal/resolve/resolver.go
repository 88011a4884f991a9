// Package resolve walks bibliography entries through the metadata
// source chain and attaches the best external record to each. Stage
// order is fixed: every entry tries identifier lookup then scored
// search at each stage, stopping at the first accepted candidate.
// Candidates in the uncertainty band are put to the LLM; when the
// budget denies the call the entry simply stays unresolved at that
// stage and the walk continues.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/metasources"
	"github.com/helixir/citation-integrity-service/internal/observability"
)

// DefaultCacheSize bounds the shared response cache when the config
// does not say otherwise.
const DefaultCacheSize = 2048

// Config holds resolver tuning knobs.
type Config struct {
	// DocumentConcurrency bounds how many entries resolve in parallel.
	DocumentConcurrency int

	// CacheSize is the LRU capacity for source responses.
	CacheSize int

	// PreprintYearGapMax is the widest year gap tolerated between a
	// preprint-like entry and its candidate record.
	PreprintYearGapMax int
}

func (c *Config) applyDefaults() {
	if c.DocumentConcurrency <= 0 {
		c.DocumentConcurrency = 8
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.PreprintYearGapMax <= 0 {
		c.PreprintYearGapMax = DefaultPreprintYearGapMax
	}
}

type cacheKey struct {
	source string
	kind   string
	key    string
}

type cacheEntry struct {
	works []*domain.ResolvedWork
	err   error
}

// Resolver resolves bibliography entries against the source chain.
type Resolver struct {
	chain   *metasources.Chain
	gate    *metasources.Gate
	cache   *lru.Cache[cacheKey, *cacheEntry]
	llm     llm.Client
	budget  *llm.Budget
	logger  zerolog.Logger
	metrics *observability.Metrics
	cfg     Config
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLLM enables LLM verification of uncertain candidates.
func WithLLM(client llm.Client, budget *llm.Budget) Option {
	return func(r *Resolver) {
		r.llm = client
		r.budget = budget
	}
}

// WithGate bounds in-flight external calls.
func WithGate(gate *metasources.Gate) Option {
	return func(r *Resolver) { r.gate = gate }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics records resolution and cache outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver over the given source chain.
func New(chain *metasources.Chain, cfg Config, opts ...Option) (*Resolver, error) {
	cfg.applyDefaults()

	cache, err := lru.New[cacheKey, *cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating response cache: %w", err)
	}

	r := &Resolver{
		chain:  chain,
		cache:  cache,
		logger: zerolog.Nop(),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveAll resolves every non-excluded entry in place, attaching
// Resolved records where a stage accepted a candidate. Entries keep
// nil Resolved when every stage came up empty; only context
// cancellation aborts the run.
func (r *Resolver) ResolveAll(ctx context.Context, entries []domain.BibliographyEntry) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.DocumentConcurrency)

	for i := range entries {
		if entries[i].Excluded {
			continue
		}
		entry := &entries[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r.resolveEntry(ctx, entry)
			return nil
		})
	}
	return g.Wait()
}

func (r *Resolver) resolveEntry(ctx context.Context, entry *domain.BibliographyEntry) {
	for _, stage := range r.chain.EnabledStages() {
		if work := r.tryIdentifier(ctx, stage, entry); work != nil {
			// An identifier hit is only trusted when its metadata agrees
			// with the entry; a mistyped DOI resolves to a real record
			// for the wrong work, so disagreement falls through to
			// scored search.
			if identifierAgreement(entry, work) {
				work.Confidence = 1.0
				entry.Resolved = work
				r.recordResolution(stage.Name(), "identifier")
				return
			}
			r.recordResolution(stage.Name(), "identifier_mismatch")
			r.logger.Debug().
				Str("source", stage.Name()).
				Str("entry_id", entry.ID).
				Str("candidate_title", work.Title).
				Msg("identifier lookup disagreed with entry metadata")
		}

		work, score := r.trySearch(ctx, stage, entry)
		if work == nil {
			r.recordResolution(stage.Name(), "miss")
			continue
		}

		switch {
		case score >= acceptThreshold:
			work.Confidence = score
			entry.Resolved = work
			r.recordResolution(stage.Name(), "search")
			return
		case score >= verifyThreshold && r.verifyWithLLM(ctx, entry, work):
			work.Confidence = score
			entry.Resolved = work
			r.recordResolution(stage.Name(), "search_verified")
			return
		default:
			r.recordResolution(stage.Name(), "rejected")
		}
	}

	r.logger.Debug().Str("entry_id", entry.ID).Msg("entry unresolved after all stages")
}

// tryIdentifier runs the stage's identifier lookup. Lookup misses and
// stage errors both return nil; errors are logged and the walk moves on
// rather than failing the document.
func (r *Resolver) tryIdentifier(ctx context.Context, stage metasources.MetadataSource, entry *domain.BibliographyEntry) *domain.ResolvedWork {
	canonical := domain.GenerateCanonicalID(entry.Identifiers)
	if canonical == "" {
		return nil
	}

	works, err := r.cached(ctx, cacheKey{source: stage.Name(), kind: "id", key: canonical}, func(ctx context.Context) ([]*domain.ResolvedWork, error) {
		work, err := stage.LookupByIdentifier(ctx, entry.Identifiers)
		if err != nil {
			return nil, err
		}
		return []*domain.ResolvedWork{work}, nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrNoIdentifier) {
			r.logger.Warn().Err(err).
				Str("source", stage.Name()).
				Str("entry_id", entry.ID).
				Msg("identifier lookup failed")
		}
		return nil
	}
	if len(works) == 0 {
		return nil
	}
	return cloneWork(works[0])
}

// trySearch runs the stage's scored search and returns the best
// candidate with its score, or nil when nothing plausible came back.
func (r *Resolver) trySearch(ctx context.Context, stage metasources.MetadataSource, entry *domain.BibliographyEntry) (*domain.ResolvedWork, float64) {
	if entry.Title == "" {
		return nil, 0
	}

	key := cacheKey{
		source: stage.Name(),
		kind:   "search",
		key:    strings.ToLower(entry.Title) + "|" + entry.FirstAuthor + "|" + strconv.Itoa(entry.Year),
	}
	works, err := r.cached(ctx, key, func(ctx context.Context) ([]*domain.ResolvedWork, error) {
		return stage.Search(ctx, metasources.SearchQuery{
			Title:       entry.Title,
			FirstAuthor: entry.FirstAuthor,
			Year:        entry.Year,
		})
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn().Err(err).
				Str("source", stage.Name()).
				Str("entry_id", entry.ID).
				Msg("search failed")
		}
		return nil, 0
	}

	var best *domain.ResolvedWork
	bestScore := 0.0
	for _, work := range works {
		if score := scoreCandidate(entry, work, r.cfg.PreprintYearGapMax); score > bestScore {
			best = work
			bestScore = score
		}
	}
	if best == nil {
		return nil, 0
	}
	return cloneWork(best), bestScore
}

// cached runs fetch through the shared LRU. Negative lookups are cached
// too so a missing identifier does not re-query the source for every
// entry citing it.
func (r *Resolver) cached(ctx context.Context, key cacheKey, fetch func(context.Context) ([]*domain.ResolvedWork, error)) ([]*domain.ResolvedWork, error) {
	if hit, ok := r.cache.Get(key); ok {
		if r.metrics != nil {
			r.metrics.RecordCacheHit(key.source)
		}
		return hit.works, hit.err
	}
	if r.metrics != nil {
		r.metrics.RecordCacheMiss(key.source)
	}

	release, err := r.acquire(ctx, key.source)
	if err != nil {
		return nil, err
	}
	works, err := fetch(ctx)
	release()

	// Context cancellation is not a source answer; do not memoize it.
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	r.cache.Add(key, &cacheEntry{works: works, err: err})
	return works, err
}

func (r *Resolver) acquire(ctx context.Context, source string) (func(), error) {
	if r.gate == nil {
		return func() {}, nil
	}
	return r.gate.Acquire(ctx, source)
}

type verificationResponse struct {
	Verdict    string  `json:"verdict" validate:"required,oneof=yes no uncertain"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string  `json:"reason"`
}

const verificationSystemPrompt = `You verify whether an external metadata record describes the same work as a manuscript reference.
Respond with JSON only: {"verdict": "yes"|"no"|"uncertain", "confidence": <0..1>, "reason": "<short>"}.`

// verifyWithLLM asks the LLM whether an uncertain candidate is the
// referenced work. Any failure, including budget denial, counts as not
// verified.
func (r *Resolver) verifyWithLLM(ctx context.Context, entry *domain.BibliographyEntry, work *domain.ResolvedWork) bool {
	if r.llm == nil {
		return false
	}
	if err := r.budget.Spend("resolve"); err != nil {
		if r.metrics != nil {
			r.metrics.RecordLLMBudgetDenial("resolve")
		}
		return false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Reference: %s\n\nCandidate record:\nTitle: %s\n", entry.Raw, work.Title)
	if name := work.FirstAuthorName(); name != "" {
		fmt.Fprintf(&sb, "First author: %s\n", name)
	}
	if work.Year != 0 {
		fmt.Fprintf(&sb, "Year: %d\n", work.Year)
	}
	if work.Venue != "" {
		fmt.Fprintf(&sb, "Venue: %s\n", work.Venue)
	}
	if work.Identifiers.DOI != "" {
		fmt.Fprintf(&sb, "DOI: %s\n", work.Identifiers.DOI)
	}

	result, err := r.llm.Complete(ctx, llm.Request{
		Operation: "resolution_verification",
		System:    verificationSystemPrompt,
		User:      sb.String(),
		MaxTokens: 256,
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("resolution verification failed")
		return false
	}

	var resp verificationResponse
	if err := llm.DecodeInto(result.Content, &resp); err != nil {
		r.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("decoding verification response failed")
		return false
	}
	return resp.Verdict == "yes" && resp.Confidence >= verifyThreshold
}

func (r *Resolver) recordResolution(source, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordResolution(source, outcome)
	}
}

// cloneWork copies a cached work so per-entry mutation (Confidence)
// cannot leak between entries sharing a cache hit.
func cloneWork(work *domain.ResolvedWork) *domain.ResolvedWork {
	if work == nil {
		return nil
	}
	clone := *work
	return &clone
}
