package deep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
)

const (
	// keyTitleMaxChars and keyContextMaxChars bound the per-reference
	// text shown to the key-selection prompt.
	keyTitleMaxChars   = 140
	keyContextMaxChars = 220

	// keyExcerptMaxChars bounds the manuscript excerpt in the prompt.
	keyExcerptMaxChars = 6000
)

const keySelectionSystemPrompt = `You select the references most central to a manuscript's argument.
Given the manuscript excerpt and its verified reference list, choose exactly the requested number of key reference ids.
Respond with JSON only: {"key_ref_ids": ["R1", ...]}.
Only use ids from the provided list.`

type keySelectionResponse struct {
	KeyRefIDs []string `json:"key_ref_ids" validate:"required,min=1"`
}

// keyTarget returns how many key references to select: half of the
// verified set, rounded up.
func keyTarget(verified int) int {
	return int(math.Ceil(float64(verified) / 2))
}

// selectKeys picks the key references for graph expansion. The LLM
// pick is used only when it returns exactly the target count of known
// ids; anything else falls back to the most-cited-then-newest
// heuristic so the selection is always deterministic and complete.
func selectKeys(ctx context.Context, client llm.Client, budget *llm.Budget, logger zerolog.Logger,
	verified []*domain.BibliographyEntry, citeCounts map[string]int, contexts map[string]string, excerpt string) []string {

	target := keyTarget(len(verified))

	if client != nil && budget != nil {
		ids, err := selectKeysWithLLM(ctx, client, budget, verified, citeCounts, contexts, excerpt, target)
		switch {
		case err == nil && len(ids) == target:
			return ids
		case errors.Is(err, domain.ErrBudgetExhausted):
			logger.Debug().Msg("key selection skipped, LLM budget exhausted")
		case err != nil:
			logger.Warn().Err(err).Msg("key selection fell back to heuristic")
		default:
			logger.Warn().Int("want", target).Int("got", len(ids)).
				Msg("key selection returned wrong count, using heuristic")
		}
	}

	return heuristicKeys(verified, citeCounts, target)
}

func selectKeysWithLLM(ctx context.Context, client llm.Client, budget *llm.Budget,
	verified []*domain.BibliographyEntry, citeCounts map[string]int, contexts map[string]string,
	excerpt string, target int) ([]string, error) {

	if err := budget.Spend("deep"); err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, entry := range verified {
		title := clip(collapse(entry.Resolved.Title), keyTitleMaxChars)
		example := clip(collapse(contexts[entry.ID]), keyContextMaxChars)
		fmt.Fprintf(&sb, "- ref_id=%s | cites_in_paper=%d | year=%d | title=%s | example_use=%s\n",
			entry.ID, citeCounts[entry.ID], entry.Resolved.Year, orNA(title), orNA(example))
	}

	result, err := client.Complete(ctx, llm.Request{
		System: keySelectionSystemPrompt,
		User: fmt.Sprintf("Select exactly %d key reference ids.\n\nManuscript excerpt:\n%s\n\nReferences:\n%s",
			target, clip(collapse(excerpt), keyExcerptMaxChars), sb.String()),
	})
	if err != nil {
		return nil, err
	}

	var resp keySelectionResponse
	if err := llm.DecodeInto(result.Content, &resp); err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(verified))
	for _, entry := range verified {
		allowed[entry.ID] = true
	}
	seen := make(map[string]bool, len(resp.KeyRefIDs))
	var ids []string
	for _, id := range resp.KeyRefIDs {
		id = strings.TrimSpace(id)
		if !allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// heuristicKeys ranks by in-text citation count, then publication
// year, then entry id for a stable order.
func heuristicKeys(verified []*domain.BibliographyEntry, citeCounts map[string]int, target int) []string {
	ranked := make([]*domain.BibliographyEntry, len(verified))
	copy(ranked, verified)
	sort.SliceStable(ranked, func(i, j int) bool {
		ci, cj := citeCounts[ranked[i].ID], citeCounts[ranked[j].ID]
		if ci != cj {
			return ci > cj
		}
		yi, yj := ranked[i].Resolved.Year, ranked[j].Resolved.Year
		if yi != yj {
			return yi > yj
		}
		return ranked[i].ID < ranked[j].ID
	})
	if target > len(ranked) {
		target = len(ranked)
	}
	ids := make([]string, 0, target)
	for _, entry := range ranked[:target] {
		ids = append(ids, entry.ID)
	}
	return ids
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}
