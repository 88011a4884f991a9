// Package engine orchestrates the citation-integrity pipeline: parse,
// exclusion filtering, indexing, matching, resolution, checks, optional
// deep analysis, and report assembly. One Engine serves many documents;
// every Analyze call gets its own LLM budget, response cache, and gates.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/checks"
	"github.com/helixir/citation-integrity-service/internal/deep"
	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/match"
	"github.com/helixir/citation-integrity-service/internal/metasources"
	"github.com/helixir/citation-integrity-service/internal/observability"
	"github.com/helixir/citation-integrity-service/internal/parse"
	"github.com/helixir/citation-integrity-service/internal/refindex"
	"github.com/helixir/citation-integrity-service/internal/resolve"
	"github.com/helixir/citation-integrity-service/internal/signals"
)

// Config holds the per-engine pipeline settings.
type Config struct {
	// LLMBudget caps LLM calls per analysis run. Zero disables LLM
	// escalation entirely; a negative value removes the cap.
	LLMBudget int

	// SourceConcurrency bounds each source's in-flight calls
	// process-wide. Zero disables the bound.
	SourceConcurrency int

	Resolve resolve.Config
	Checks  checks.Config

	// DeepEnabled turns on the optional citation-network analysis.
	DeepEnabled bool
	Deep        deep.Config
}

// Engine runs the full analysis pipeline. Construct once, share freely;
// Analyze is safe for concurrent use.
type Engine struct {
	chain      *metasources.Chain
	cfg        Config
	llm        llm.Client
	retraction *signals.RetractionChecker
	predatory  *signals.PredatoryChecker
	excluded   *checks.ExcludedFilter
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLLM enables LLM escalation across the pipeline, metered per run
// by the configured budget.
func WithLLM(client llm.Client) Option {
	return func(e *Engine) { e.llm = client }
}

// WithSignals enables retraction and predatory-venue checks.
func WithSignals(retraction *signals.RetractionChecker, predatory *signals.PredatoryChecker) Option {
	return func(e *Engine) {
		e.retraction = retraction
		e.predatory = predatory
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables pipeline metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an analysis engine over a resolver source chain.
func New(chain *metasources.Chain, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		chain:    chain,
		cfg:      cfg,
		excluded: checks.NewExcludedFilter(cfg.Checks.ExcludedReferences),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze runs the pipeline over one manuscript and returns the report.
// The only fatal pipeline error is a policy-mandatory check that could
// not run; everything else degrades into report content.
func (e *Engine) Analyze(ctx context.Context, text string) (*domain.Report, error) {
	started := time.Now()
	runID := uuid.New()
	ctx = observability.WithRunID(ctx, runID.String())
	logger := observability.WithRunContext(e.logger, runID.String(), "")

	budget := e.newBudget()
	gate := metasources.NewGate(int64(e.cfg.Resolve.DocumentConcurrency), int64(e.cfg.SourceConcurrency))

	// 1. Parse.
	parser := parse.New(
		parse.WithLLM(e.llm, budget),
		parse.WithLogger(observability.WithComponent(logger, "parse")),
	)
	doc, err := parser.Parse(ctx, text)
	if err != nil {
		e.recordFailure(started)
		return nil, err
	}

	// 2. Excluded sources leave the working set once, before any
	// matching or resolution.
	checker := e.newChecker(budget, logger)
	excluded := checker.MarkExcluded(doc.Bibliography)
	if excluded > 0 {
		logger.Info().Int("entries", excluded).Msg("excluded sources filtered")
	}

	// 3. Index.
	ix := refindex.Build(doc.Bibliography)

	// 4. Match.
	matcher := match.New(
		match.WithLLM(e.llm, budget),
		match.WithLogger(observability.WithComponent(logger, "match")),
	)
	matches := matcher.Match(ctx, doc, ix)
	e.recordMatches(matches)

	// 5. Resolve.
	resolver, err := resolve.New(e.chain, e.cfg.Resolve,
		resolve.WithLLM(e.llm, budget),
		resolve.WithGate(gate),
		resolve.WithLogger(observability.WithComponent(logger, "resolve")),
		resolve.WithMetrics(e.metrics),
	)
	if err != nil {
		e.recordFailure(started)
		return nil, err
	}
	if err := resolver.ResolveAll(ctx, doc.Bibliography); err != nil {
		e.recordFailure(started)
		return nil, err
	}

	// 6. Checks. A mandatory check that could not run fails the
	// document; this is the pipeline's only policy error.
	issues, err := checker.Run(ctx, doc, matches)
	if err != nil {
		e.recordFailure(started)
		return nil, err
	}
	e.recordIssues(issues)

	// 7. Optional deep analysis, never fatal.
	var deepResult *domain.DeepAnalysis
	if e.cfg.DeepEnabled {
		deepResult = e.newDeepEngine(budget, logger).Analyze(ctx, doc, matches)
	}

	// 8. Assemble.
	report := &domain.Report{
		RunID:           runID,
		GeneratedAt:     time.Now().UTC(),
		System:          doc.System,
		SecondarySystem: doc.SecondarySystem,
		BrokenNumbering: brokenNumbering(matches),
		Mentions:        doc.Mentions,
		Bibliography:    doc.Bibliography,
		Matches:         matches,
		Issues:          issues,
		IssueCounts:     issueCounts(issues),
		BudgetSpent:     budget.Spent(),
		BudgetExhausted: e.llm != nil && budget.Exhausted(),
		Deep:            deepResult,
	}

	if e.metrics != nil {
		e.metrics.RecordDocumentAnalyzed(time.Since(started).Seconds(), len(doc.Mentions), len(doc.Bibliography))
	}
	logger.Info().
		Int("mentions", len(doc.Mentions)).
		Int("entries", len(doc.Bibliography)).
		Int("issues", len(issues)).
		Int("llm_calls", report.BudgetSpent).
		Dur("elapsed", time.Since(started)).
		Msg("document analyzed")
	return report, nil
}

func (e *Engine) newBudget() *llm.Budget {
	if e.cfg.LLMBudget < 0 {
		return llm.Unlimited()
	}
	return llm.NewBudget(e.cfg.LLMBudget)
}

func (e *Engine) newChecker(budget *llm.Budget, logger zerolog.Logger) *checks.Checker {
	opts := []checks.Option{
		checks.WithLogger(observability.WithComponent(logger, "checks")),
	}
	if e.llm != nil {
		opts = append(opts, checks.WithLLM(e.llm, budget))
	}
	if e.retraction != nil || e.predatory != nil {
		opts = append(opts, checks.WithSignals(e.retraction, e.predatory))
	}
	return checks.New(e.cfg.Checks, opts...)
}

func (e *Engine) newDeepEngine(budget *llm.Budget, logger zerolog.Logger) *deep.Engine {
	opts := []deep.Option{
		deep.WithLogger(observability.WithComponent(logger, "deep")),
	}
	if e.llm != nil {
		opts = append(opts, deep.WithLLM(e.llm, budget))
	}
	if !e.excluded.Empty() {
		opts = append(opts, deep.WithExcluded(e.excluded.Matches))
	}
	if e.metrics != nil {
		opts = append(opts, deep.WithMetrics(e.metrics))
	}
	return deep.New(e.chain.Enumerator(), e.cfg.Deep, opts...)
}

func (e *Engine) recordFailure(started time.Time) {
	if e.metrics != nil {
		e.metrics.RecordDocumentFailed(time.Since(started).Seconds())
	}
}

func (e *Engine) recordMatches(matches []domain.MatchResult) {
	if e.metrics == nil {
		return
	}
	for _, m := range matches {
		e.metrics.RecordMatch(string(m.Method), m.Ambiguous)
	}
}

func (e *Engine) recordIssues(issues []domain.Issue) {
	if e.metrics == nil {
		return
	}
	for _, issue := range issues {
		e.metrics.RecordIssue(string(issue.Kind), string(issue.Severity))
	}
}

// brokenNumbering is disclosed whenever any atom was linked by position
// inference rather than an explicit bibliography number.
func brokenNumbering(matches []domain.MatchResult) domain.BrokenNumbering {
	for _, m := range matches {
		if m.Method == domain.MatchByPosition {
			return domain.BrokenNumbering{
				Detected: true,
				Reason:   "bibliography carries no explicit numbering; numeric pointers were matched by list position",
			}
		}
	}
	return domain.BrokenNumbering{}
}

func issueCounts(issues []domain.Issue) map[domain.IssueKind]int {
	if len(issues) == 0 {
		return nil
	}
	counts := make(map[domain.IssueKind]int, len(issues))
	for _, issue := range issues {
		counts[issue.Kind]++
	}
	return counts
}
