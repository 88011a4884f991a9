package deep

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/metasources"
	"github.com/helixir/citation-integrity-service/internal/observability"
	"github.com/helixir/citation-integrity-service/internal/parse"
)

// verifiedConfidence is the minimum resolver confidence for an entry
// to count as verified and enter the citation graph.
const verifiedConfidence = 0.55

// Config holds the deep-analysis caps.
type Config struct {
	// MaxWaves is the number of expansion waves to run (up to five).
	MaxWaves int

	// CitingCapPerKey caps citing works fetched per key reference.
	CitingCapPerKey int

	// MaxNodes and MaxEdges cap the graph arena.
	MaxNodes int
	MaxEdges int

	// MaxOriginalRefs skips the analysis for documents whose verified
	// reference count exceeds it.
	MaxOriginalRefs int

	// Concurrency caps parallel enumeration fetches per wave.
	Concurrency int
}

func (c *Config) applyDefaults() {
	if c.MaxWaves <= 0 {
		c.MaxWaves = 5
	}
	if c.CitingCapPerKey <= 0 {
		c.CitingCapPerKey = 100
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = 2000
	}
	if c.MaxEdges <= 0 {
		c.MaxEdges = 8000
	}
	if c.MaxOriginalRefs <= 0 {
		c.MaxOriginalRefs = 300
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
}

// Engine runs the deep citation-network analysis. Its result is a
// report block, never a document error: every failure mode maps to a
// skipped, partial, or failed status.
type Engine struct {
	enum    metasources.CitationEnumerator
	cfg     Config
	llm     llm.Client
	budget  *llm.Budget
	exclude func(string) bool
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLLM enables LLM-backed key selection, section structuring, and
// suggestion drafting, metered by the shared run budget.
func WithLLM(client llm.Client, budget *llm.Budget) Option {
	return func(e *Engine) {
		e.llm = client
		e.budget = budget
	}
}

// WithExcluded filters fetched works by venue at graph insertion.
func WithExcluded(matches func(string) bool) Option {
	return func(e *Engine) { e.exclude = matches }
}

// WithLogger sets the engine's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables deep-analysis metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates a deep-analysis engine. enum may be nil; expansion is
// then skipped and the analysis runs over the document's own
// references only.
func New(enum metasources.CitationEnumerator, cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		enum:   enum,
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze builds and scores the citation network for a parsed and
// resolved document. The returned block is always non-nil.
func (e *Engine) Analyze(ctx context.Context, doc *parse.Document, matches []domain.MatchResult) *domain.DeepAnalysis {
	result := e.analyze(ctx, doc, matches)
	if e.metrics != nil {
		e.metrics.RecordDeepAnalysis(string(result.Status), result.Graph.NodeCount, result.Graph.EdgeCount)
	}
	return result
}

func (e *Engine) analyze(ctx context.Context, doc *parse.Document, matches []domain.MatchResult) *domain.DeepAnalysis {
	verified := verifiedEntries(doc.Bibliography)
	if len(verified) == 0 {
		return &domain.DeepAnalysis{
			Status: domain.DeepSkipped,
			Reason: "no verified references available",
		}
	}
	if len(verified) > e.cfg.MaxOriginalRefs {
		return &domain.DeepAnalysis{
			Status: domain.DeepSkipped,
			Reason: "too many verified references for the configured caps",
		}
	}

	citeCounts, contexts := citationStats(matches, doc.Mentions)
	keys := selectKeys(ctx, e.llm, e.budget, e.logger, verified, citeCounts, contexts, doc.Body)

	// Seed the graph with the document's own references, in
	// bibliography order.
	g := NewGraph(e.cfg.MaxNodes, e.cfg.MaxEdges)
	refByNode := make(map[string]string, len(verified))
	nodeByRef := make(map[string]string, len(verified))
	for _, entry := range verified {
		id := originalNodeID(entry)
		if _, ok := g.AddNode(id); !ok {
			break
		}
		refByNode[id] = entry.ID
		nodeByRef[entry.ID] = id
	}

	var keyNodes []string
	var seeds []string
	for _, refID := range keys {
		nodeID, ok := nodeByRef[refID]
		if !ok {
			continue
		}
		keyNodes = append(keyNodes, nodeID)
		if !strings.HasPrefix(nodeID, "ref:") {
			seeds = append(seeds, nodeID)
		}
	}

	var reasons []string
	var stats PoolStats
	switch {
	case e.enum == nil:
		reasons = append(reasons, "no citation-enumerating source configured")
	case len(seeds) == 0:
		reasons = append(reasons, "no key reference carries a provider identifier")
	default:
		expander := NewExpander(e.enum, e.cfg.MaxWaves, e.cfg.CitingCapPerKey, e.cfg.Concurrency, e.exclude, e.logger)
		var err error
		stats, err = expander.Expand(ctx, g, seeds)
		if err != nil {
			return &domain.DeepAnalysis{
				Status: domain.DeepFailed,
				Reason: "graph expansion aborted: " + err.Error(),
				Graph:  e.graphSummary(g),
			}
		}
		if stats.SkippedFetches > 0 {
			reasons = append(reasons, "some enumeration fetches failed and were dropped")
		}
		if g.Truncated() {
			reasons = append(reasons, "graph caps truncated the literature pool")
		}
	}

	cats := Categorize(g, keyNodes, refByNode, citeCounts)

	sections := extractSections(ctx, e.llm, e.budget, e.logger, doc.Body)
	sectionTitles := make([]string, 0, len(sections))
	for _, s := range sections {
		sectionTitles = append(sectionTitles, s.Title)
	}

	inPaper := make(map[string]bool, 2*len(verified))
	for nodeID, refID := range refByNode {
		inPaper[nodeID] = true
		inPaper[refID] = true
	}

	candidates := buildCandidates(ctx, e.llm, e.budget, e.logger, g, sections, cats,
		refByNode, nodeByRef,
		citedRefsBySection(sections, matches, doc.Mentions),
		mentionSectionLocator(sections, matches, doc.Mentions))
	recs := aggregate(candidates, inPaper, sectionTitles)

	status := domain.DeepCompleted
	if len(reasons) > 0 {
		status = domain.DeepPartial
	}

	e.logger.Info().
		Str("status", string(status)).
		Int("nodes", g.NodeCount()).
		Int("edges", g.EdgeCount()).
		Int("keys", len(keys)).
		Int("waves", stats.WavesRun).
		Msg("deep analysis finished")

	return &domain.DeepAnalysis{
		Status:          status,
		Reason:          strings.Join(reasons, "; "),
		KeyReferenceIDs: keys,
		Graph:           e.graphSummary(g),
		Categories:      cats,
		Recommendations: recs,
		SectionTitles:   sectionTitles,
	}
}

func (e *Engine) graphSummary(g *Graph) domain.GraphSummary {
	_, _, largest := weakComponents(g)
	return domain.GraphSummary{
		NodeCount:          g.NodeCount(),
		EdgeCount:          g.EdgeCount(),
		LargestClusterSize: largest,
		Truncated:          g.Truncated(),
	}
}

// verifiedEntries keeps non-excluded entries resolved at or above the
// verification threshold, in bibliography order.
func verifiedEntries(entries []domain.BibliographyEntry) []*domain.BibliographyEntry {
	var out []*domain.BibliographyEntry
	for i := range entries {
		entry := &entries[i]
		if entry.Excluded || entry.Resolved == nil {
			continue
		}
		if entry.Resolved.Confidence < verifiedConfidence {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// citationStats counts in-text uses per entry and keeps one example
// context per entry for the key-selection prompt.
func citationStats(matches []domain.MatchResult, mentions []domain.CitationMention) (map[string]int, map[string]string) {
	contextOf := make(map[string]string, len(mentions))
	for _, m := range mentions {
		contextOf[m.ID] = m.Context
	}
	counts := make(map[string]int)
	contexts := make(map[string]string)
	for _, m := range matches {
		if !m.Matched() {
			continue
		}
		counts[m.EntryID]++
		if _, ok := contexts[m.EntryID]; !ok {
			contexts[m.EntryID] = contextOf[m.MentionID]
		}
	}
	return counts, contexts
}

// originalNodeID returns the graph identity of a verified entry:
// provider identifier when available, synthetic ref id otherwise.
func originalNodeID(entry *domain.BibliographyEntry) string {
	if id := nodeIDForWork(entry.Resolved); id != "" {
		return id
	}
	return "ref:" + entry.ID
}

// citedRefsBySection maps each section title to the entry ids cited in
// its text, located by matching mention contexts against section
// bodies. Entries whose contexts land in no section are omitted.
func citedRefsBySection(sections []Section, matches []domain.MatchResult, mentions []domain.CitationMention) map[string][]string {
	contextOf := make(map[string]string, len(mentions))
	for _, m := range mentions {
		contextOf[m.ID] = m.Context
	}

	seen := make(map[string]map[string]bool)
	out := make(map[string][]string)
	for _, m := range matches {
		if !m.Matched() {
			continue
		}
		context := strings.TrimSuffix(strings.TrimSpace(contextOf[m.MentionID]), "…")
		if context == "" {
			continue
		}
		for _, s := range sections {
			if !strings.Contains(s.Text, context) {
				continue
			}
			if seen[s.Title] == nil {
				seen[s.Title] = make(map[string]bool)
			}
			if !seen[s.Title][m.EntryID] {
				seen[s.Title][m.EntryID] = true
				out[s.Title] = append(out[s.Title], m.EntryID)
			}
			break
		}
	}
	return out
}

// mentionSectionLocator maps an entry id to the title of the section
// where it is first cited, falling back to the first section.
func mentionSectionLocator(sections []Section, matches []domain.MatchResult, mentions []domain.CitationMention) func(string) string {
	contextOf := make(map[string]string, len(mentions))
	for _, m := range mentions {
		contextOf[m.ID] = m.Context
	}
	firstContext := make(map[string]string)
	for _, m := range matches {
		if !m.Matched() {
			continue
		}
		if _, ok := firstContext[m.EntryID]; !ok {
			firstContext[m.EntryID] = contextOf[m.MentionID]
		}
	}

	fallback := "Section"
	if len(sections) > 0 {
		fallback = sections[0].Title
	}

	return func(refID string) string {
		context := strings.TrimSuffix(strings.TrimSpace(firstContext[refID]), "…")
		if context == "" {
			return fallback
		}
		for _, s := range sections {
			if strings.Contains(s.Text, context) {
				return s.Title
			}
		}
		return fallback
	}
}
