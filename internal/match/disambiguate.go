package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
	"github.com/helixir/citation-integrity-service/internal/refindex"
)

// llmAcceptThreshold is the minimum LLM confidence for promoting an
// ambiguous atom to a match.
const llmAcceptThreshold = 0.65

// maxMemoContext bounds the context portion of the memo key so
// near-identical sentences share one LLM call.
const maxMemoContext = 240

type memoKey struct {
	raw        string
	context    string
	candidates string
}

type disambiguation struct {
	entryID    string
	confidence float64
}

type disambiguationResponse struct {
	BestID     *string `json:"best_id"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string  `json:"reason"`
}

const disambiguationSystemPrompt = `You resolve ambiguous academic citations against a candidate reference list.
Respond with JSON only: {"best_id": "<candidate id>" or null, "confidence": <0..1>, "reason": "<short>"}.
Pick null when no candidate clearly fits. Never pick an id outside the candidate list.`

// disambiguate asks the LLM to choose among an ambiguous atom's scored
// candidates. Identical questions are answered once per run; budget
// exhaustion and LLM failure both leave the atom ambiguous.
func (m *Matcher) disambiguate(ctx context.Context, mention domain.CitationMention, result *domain.MatchResult, ix *refindex.Index) {
	if m.llm == nil || len(result.Candidates) == 0 {
		return
	}

	key := buildMemoKey(mention, result.Candidates)
	decision, ok := m.memo[key]
	if !ok {
		var err error
		decision, err = m.askLLM(ctx, mention, result, ix)
		if err != nil {
			if errors.Is(err, domain.ErrBudgetExhausted) {
				m.logger.Debug().Str("mention_id", mention.ID).Msg("disambiguation skipped, budget exhausted")
			} else {
				m.logger.Warn().Err(err).Str("mention_id", mention.ID).Msg("disambiguation failed")
			}
			return
		}
		m.memo[key] = decision
	}

	if decision.entryID == "" || decision.confidence < llmAcceptThreshold {
		return
	}

	result.EntryID = decision.entryID
	result.Method = domain.MatchLLM
	result.Confidence = decision.confidence
	result.Ambiguous = false
}

func (m *Matcher) askLLM(ctx context.Context, mention domain.CitationMention, result *domain.MatchResult, ix *refindex.Index) (*disambiguation, error) {
	if err := m.budget.Spend("match"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Citation: %s\n", mention.Raw)
	if mention.Context != "" {
		fmt.Fprintf(&sb, "Sentence: %s\n", mention.Context)
	}
	sb.WriteString("Candidates:\n")
	for _, cand := range result.Candidates {
		entry, ok := ix.Entry(cand.EntryID)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", cand.EntryID, entry.Raw)
	}

	completion, err := m.llm.Complete(ctx, llm.Request{
		Operation: "citation_disambiguation",
		System:    disambiguationSystemPrompt,
		User:      sb.String(),
		MaxTokens: 256,
	})
	if err != nil {
		return nil, fmt.Errorf("disambiguating citation: %w", err)
	}

	var resp disambiguationResponse
	if err := llm.DecodeInto(completion.Content, &resp); err != nil {
		return nil, fmt.Errorf("decoding disambiguation response: %w", err)
	}

	if resp.BestID == nil {
		return &disambiguation{}, nil
	}
	if !candidateSetContains(result.Candidates, *resp.BestID) {
		return nil, fmt.Errorf("disambiguation picked unknown candidate %q", *resp.BestID)
	}
	return &disambiguation{entryID: *resp.BestID, confidence: resp.Confidence}, nil
}

func buildMemoKey(mention domain.CitationMention, candidates []domain.MatchCandidate) memoKey {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.EntryID)
	}
	sort.Strings(ids)

	ctx := strings.Join(strings.Fields(mention.Context), " ")
	if len(ctx) > maxMemoContext {
		ctx = ctx[:maxMemoContext]
	}

	return memoKey{
		raw:        strings.TrimSpace(mention.Raw),
		context:    ctx,
		candidates: strings.Join(ids, "|"),
	}
}

func candidateSetContains(candidates []domain.MatchCandidate, id string) bool {
	for _, c := range candidates {
		if c.EntryID == id {
			return true
		}
	}
	return false
}
