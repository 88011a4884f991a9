// Package checks runs the integrity checks over matched, resolved
// documents and emits issues. Checks only flag; nothing here mutates
// the bibliography beyond the one-time excluded-source marking.
package checks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/parse"
	"github.com/helixir/citation-integrity-service/internal/signals"
)

// unresolvedConfidence is the resolver confidence below which an
// attached record still counts as unresolved for checking purposes.
const unresolvedConfidence = 0.55

// appropriatenessGate is the context-to-work token overlap below which
// a citation is suspicious enough to ask the LLM about.
const appropriatenessGate = 0.06

// inappropriateThreshold is the minimum LLM confidence for asserting
// an inappropriate citation.
const inappropriateThreshold = 0.60

// Config holds check policy knobs.
type Config struct {
	// ExcludedReferences are venue/publisher names to drop from the
	// working set before any check runs.
	ExcludedReferences []string

	// AppropriatenessMandatory makes an unrunnable appropriateness
	// check fail the document instead of being skipped.
	AppropriatenessMandatory bool
}

// Checker runs the integrity checks.
type Checker struct {
	cfg        Config
	excluded   *ExcludedFilter
	retraction *signals.RetractionChecker
	predatory  *signals.PredatoryChecker
	llm        llm.Client
	budget     *llm.Budget
	logger     zerolog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithSignals wires the retraction and predatory collaborators. Either
// may be nil to disable that check.
func WithSignals(retraction *signals.RetractionChecker, predatory *signals.PredatoryChecker) Option {
	return func(c *Checker) {
		c.retraction = retraction
		c.predatory = predatory
	}
}

// WithLLM enables the appropriateness check's LLM verdicts.
func WithLLM(client llm.Client, budget *llm.Budget) Option {
	return func(c *Checker) {
		c.llm = client
		c.budget = budget
	}
}

// WithLogger sets the checker's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// New creates a Checker.
func New(cfg Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:      cfg,
		excluded: NewExcludedFilter(cfg.ExcludedReferences),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MarkExcluded applies the exclusion filter to the bibliography,
// setting Excluded on matching entries. Runs once, before matching and
// resolution.
func (c *Checker) MarkExcluded(entries []domain.BibliographyEntry) int {
	if c.excluded.Empty() {
		return 0
	}
	marked := 0
	for i := range entries {
		entry := &entries[i]
		if c.excluded.Matches(entry.Venue) || c.excluded.Matches(entry.Raw) {
			entry.Excluded = true
			marked++
		}
	}
	return marked
}

// Run executes all checks and returns the flagged issues in a
// deterministic order: match-scoped issues in match order, then
// entry-scoped issues in bibliography order. The only fatal error is a
// policy-mandatory appropriateness check that cannot run.
func (c *Checker) Run(ctx context.Context, doc *parse.Document, matches []domain.MatchResult) ([]domain.Issue, error) {
	var issues []domain.Issue

	entryByID := make(map[string]*domain.BibliographyEntry, len(doc.Bibliography))
	for i := range doc.Bibliography {
		entryByID[doc.Bibliography[i].ID] = &doc.Bibliography[i]
	}
	mentionByID := make(map[string]*domain.CitationMention, len(doc.Mentions))
	for i := range doc.Mentions {
		mentionByID[doc.Mentions[i].ID] = &doc.Mentions[i]
	}

	issues = append(issues, c.checkMatches(matches)...)

	appropriateness, err := c.checkAppropriateness(ctx, matches, entryByID, mentionByID)
	if err != nil {
		return nil, err
	}
	issues = append(issues, appropriateness...)

	for i := range doc.Bibliography {
		entry := &doc.Bibliography[i]
		if entry.Excluded {
			continue
		}
		issues = append(issues, c.checkEntry(ctx, entry)...)
	}

	return issues, nil
}

// checkMatches flags unmatched and still-ambiguous citation atoms.
func (c *Checker) checkMatches(matches []domain.MatchResult) []domain.Issue {
	var issues []domain.Issue
	for i := range matches {
		m := &matches[i]
		switch {
		case m.Ambiguous:
			issues = append(issues, domain.Issue{
				Kind:      domain.IssueAmbiguousBibliographyRef,
				Severity:  domain.SeverityReviewNeeded,
				MentionID: m.MentionID,
				Summary:   fmt.Sprintf("citation %q matches %d bibliography entries with no clear winner", atomLabel(m.Atom), len(m.Candidates)),
				Evidence:  candidateEvidence(m.Candidates),
			})
		case !m.Matched():
			issues = append(issues, domain.Issue{
				Kind:      domain.IssueMissingBibliographyRef,
				Severity:  domain.SeverityHigh,
				MentionID: m.MentionID,
				Summary:   fmt.Sprintf("citation %q has no bibliography entry", atomLabel(m.Atom)),
			})
		}
	}
	return issues
}

// checkEntry runs the entry-scoped checks: unresolved, retracted, and
// predatory venue.
func (c *Checker) checkEntry(ctx context.Context, entry *domain.BibliographyEntry) []domain.Issue {
	var issues []domain.Issue

	if entry.Resolved == nil || entry.Resolved.Confidence < unresolvedConfidence {
		issues = append(issues, domain.Issue{
			Kind:     domain.IssueUnresolvedRef,
			Severity: domain.SeverityReviewNeeded,
			EntryID:  entry.ID,
			Summary:  "reference could not be verified against any metadata source",
		})
	}

	if c.retraction != nil {
		if signal := c.retraction.Check(ctx, entry); signal.Retracted {
			issue := domain.Issue{
				Kind:     domain.IssueRetracted,
				Severity: severityOf(signal.Tier),
				EntryID:  entry.ID,
				Summary:  "cited work appears to be retracted",
				Evidence: map[string]string{"sources": strings.Join(signal.Sources, ",")},
			}
			if signal.Reason != "" {
				issue.Evidence["reason"] = signal.Reason
			}
			issues = append(issues, issue)
		}
	}

	if c.predatory != nil {
		venue := entry.Venue
		if entry.Resolved != nil && entry.Resolved.Venue != "" {
			venue = entry.Resolved.Venue
		}
		if signal := c.predatory.Check(ctx, venue); signal.Predatory {
			issues = append(issues, domain.Issue{
				Kind:     domain.IssuePredatoryVenue,
				Severity: severityOf(signal.Tier),
				EntryID:  entry.ID,
				Summary:  fmt.Sprintf("venue %q appears on a predatory watchlist", venue),
				Evidence: map[string]string{
					"sources":      strings.Join(signal.Sources, ","),
					"matched_name": signal.MatchedName,
				},
			})
		}
	}

	return issues
}

type appropriatenessResponse struct {
	Verdict    string  `json:"verdict" validate:"required,oneof=appropriate inappropriate uncertain"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string  `json:"reason"`
}

const appropriatenessSystemPrompt = `You judge whether a cited work supports the sentence citing it.
Respond with JSON only: {"verdict": "appropriate"|"inappropriate"|"uncertain", "confidence": <0..1>, "reason": "<short>"}.`

// checkAppropriateness flags citations whose sentence shares almost no
// content with the cited work. The token gate keeps LLM traffic to the
// suspicious minority; when the check is policy-mandatory, an
// unavailable LLM or an exhausted budget fails the document.
func (c *Checker) checkAppropriateness(ctx context.Context, matches []domain.MatchResult, entries map[string]*domain.BibliographyEntry, mentions map[string]*domain.CitationMention) ([]domain.Issue, error) {
	if c.llm == nil {
		if c.cfg.AppropriatenessMandatory {
			return nil, domain.NewMandatoryCheckError("appropriateness", "llm", errors.New("no LLM provider configured"))
		}
		return nil, nil
	}

	var issues []domain.Issue
	for i := range matches {
		m := &matches[i]
		if !m.Matched() {
			continue
		}
		entry := entries[m.EntryID]
		mention := mentions[m.MentionID]
		if entry == nil || mention == nil || entry.Resolved == nil || mention.Context == "" {
			continue
		}

		workText := entry.Resolved.Title + " " + entry.Resolved.Abstract
		overlap := parse.TokenOverlap(parse.ContentTokens(mention.Context), parse.ContentTokens(workText))
		if overlap >= appropriatenessGate {
			continue
		}

		issue, err := c.judgeAppropriateness(ctx, mention, entry, overlap)
		if err != nil {
			// Budget denial and collaborator failure alike: a mandatory
			// check that cannot produce a verdict fails the document.
			if c.cfg.AppropriatenessMandatory {
				return nil, domain.NewMandatoryCheckError("appropriateness", "llm", err)
			}
			c.logger.Warn().Err(err).Str("mention_id", mention.ID).Msg("appropriateness check failed")
			continue
		}
		if issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues, nil
}

func (c *Checker) judgeAppropriateness(ctx context.Context, mention *domain.CitationMention, entry *domain.BibliographyEntry, overlap float64) (*domain.Issue, error) {
	if err := c.budget.Spend("checks"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sentence: %s\n\nCited work:\nTitle: %s\n", mention.Context, entry.Resolved.Title)
	if entry.Resolved.Abstract != "" {
		fmt.Fprintf(&sb, "Abstract: %s\n", entry.Resolved.Abstract)
	}

	result, err := c.llm.Complete(ctx, llm.Request{
		Operation: "citation_appropriateness",
		System:    appropriatenessSystemPrompt,
		User:      sb.String(),
		MaxTokens: 256,
	})
	if err != nil {
		return nil, fmt.Errorf("judging appropriateness: %w", err)
	}

	var resp appropriatenessResponse
	if err := llm.DecodeInto(result.Content, &resp); err != nil {
		return nil, fmt.Errorf("decoding appropriateness response: %w", err)
	}

	evidence := map[string]string{
		"token_overlap": strconv.FormatFloat(overlap, 'f', 3, 64),
		"verdict":       resp.Verdict,
	}
	if resp.Reason != "" {
		evidence["reason"] = resp.Reason
	}

	switch {
	case resp.Verdict == "inappropriate" && resp.Confidence >= inappropriateThreshold:
		return &domain.Issue{
			Kind:      domain.IssueInappropriateCitation,
			Severity:  domain.SeverityHigh,
			MentionID: mention.ID,
			EntryID:   entry.ID,
			Summary:   "cited work does not appear to support the citing sentence",
			Evidence:  evidence,
		}, nil
	case resp.Verdict == "uncertain":
		return &domain.Issue{
			Kind:      domain.IssueInappropriateCitation,
			Severity:  domain.SeverityReviewNeeded,
			MentionID: mention.ID,
			EntryID:   entry.ID,
			Summary:   "citation relevance could not be confirmed",
			Evidence:  evidence,
		}, nil
	default:
		return nil, nil
	}
}

func severityOf(tier signals.Tier) domain.IssueSeverity {
	if tier == signals.TierHigh {
		return domain.SeverityHigh
	}
	return domain.SeverityReviewNeeded
}

func atomLabel(atom domain.CitationAtom) string {
	if atom.Number > 0 {
		return "[" + strconv.Itoa(atom.Number) + "]"
	}
	if key := atom.AuthorYearKey(); key != "" {
		return key
	}
	return atom.RawAuthor
}

func candidateEvidence(candidates []domain.MatchCandidate) map[string]string {
	if len(candidates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.EntryID)
	}
	return map[string]string{"candidates": strings.Join(ids, ",")}
}
