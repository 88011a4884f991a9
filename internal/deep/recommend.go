package deep

import (
	"regexp"
	"sort"
	"strings"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

var entryIDRe = regexp.MustCompile(`^[Rr]\d+$`)

// Recommendation candidate bonuses applied on top of the action-type
// precedence weight.
const (
	hintHighBonus      = 18
	hintMediumBonus    = 9
	notInPaperBonus    = 8
	anchorQuoteBonus   = 6
	llmSourcedBonus    = 2
	maxGlobalActions   = 5
	maxActionsPerSect  = 3
	hintIntBonusCeil   = 25
	hintIntBonusFactor = 5
)

// Candidate is one raw recommendation before dedup and ranking.
type Candidate struct {
	SectionTitle string
	ActionType   domain.RecommendationAction
	Action       string
	Why          string
	Where        string
	AnchorQuote  string
	RefIDs       []string

	// HintInt is a 1-based priority rank (1 strongest, 0 unset).
	HintInt int

	// HintLabel is a textual priority ("high", "medium", other ignored).
	HintLabel string

	// Source tags where the candidate came from; a "_llm" suffix earns
	// a small bonus over heuristic candidates.
	Source string
}

// aggregate dedupes, scores, and caps recommendation candidates into
// the report shape: a global top-five plus per-section top-three lists
// that never repeat a globally promoted action. inPaper holds every id
// (entry or node) belonging to the document's own reference list;
// sectionOrder fixes the output ordering for known section titles.
func aggregate(candidates []Candidate, inPaper map[string]bool, sectionOrder []string) domain.Recommendations {
	type scored struct {
		Candidate
		score int
	}

	normalized := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		cand = normalizeCandidate(cand)
		if cand.Action == "" {
			continue
		}
		normalized = append(normalized, cand)
	}
	normalized = mergeNearDuplicates(normalized)

	seen := make(map[string]bool, len(normalized))
	var cleaned []scored
	for _, cand := range normalized {
		key := dedupeKey(cand)
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, scored{Candidate: cand, score: scoreCandidate(cand, inPaper)})
	}

	if len(cleaned) == 0 {
		return domain.Recommendations{
			Status: "skipped",
			Note:   "No recommendations were generated for this run.",
		}
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		if cleaned[i].score != cleaned[j].score {
			return cleaned[i].score > cleaned[j].score
		}
		si, sj := strings.ToLower(cleaned[i].SectionTitle), strings.ToLower(cleaned[j].SectionTitle)
		if si != sj {
			return si < sj
		}
		return strings.ToLower(cleaned[i].Action) < strings.ToLower(cleaned[j].Action)
	})

	globalCount := maxGlobalActions
	if globalCount > len(cleaned) {
		globalCount = len(cleaned)
	}
	promoted := make(map[string]bool, globalCount)
	global := make([]domain.RecommendationItem, 0, globalCount)
	for _, c := range cleaned[:globalCount] {
		promoted[dedupeKey(c.Candidate)] = true
		global = append(global, publicItem(c.Candidate))
	}

	// Section lists exclude globally promoted actions so the two views
	// never repeat an item.
	buckets := make(map[string][]domain.RecommendationItem)
	for _, c := range cleaned {
		if promoted[dedupeKey(c.Candidate)] {
			continue
		}
		bucket := buckets[c.SectionTitle]
		if len(bucket) >= maxActionsPerSect {
			continue
		}
		buckets[c.SectionTitle] = append(bucket, publicItem(c.Candidate))
	}

	sections := make([]domain.RecommendationSection, 0, len(buckets))
	for title, actions := range buckets {
		sections = append(sections, domain.RecommendationSection{Title: title, Actions: actions})
	}
	rank := make(map[string]int, len(sectionOrder))
	for i, title := range sectionOrder {
		rank[title] = i
	}
	sort.SliceStable(sections, func(i, j int) bool {
		ri, iok := rank[sections[i].Title]
		rj, jok := rank[sections[j].Title]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return strings.ToLower(sections[i].Title) < strings.ToLower(sections[j].Title)
		}
	})

	return domain.Recommendations{
		Status:        "completed",
		Overview:      defaultOverview(global),
		GlobalActions: global,
		Sections:      sections,
	}
}

func normalizeCandidate(cand Candidate) Candidate {
	cand.SectionTitle = collapse(cand.SectionTitle)
	if cand.SectionTitle == "" {
		cand.SectionTitle = "Section"
	}
	switch cand.ActionType {
	case domain.ActionAdd, domain.ActionStrengthen, domain.ActionJustify, domain.ActionReconsider:
	default:
		cand.ActionType = domain.ActionStrengthen
	}
	cand.Action = collapse(cand.Action)
	cand.Why = collapse(cand.Why)
	cand.Where = collapse(cand.Where)
	cand.AnchorQuote = collapse(cand.AnchorQuote)
	if cand.Action != "" {
		if cand.Why == "" {
			cand.Why = "This change improves how evidence supports the claim."
		}
		if cand.Where == "" {
			cand.Where = "Near the sentence where the claim is made."
		}
	}
	cand.RefIDs = cleanRefIDs(cand.RefIDs)
	return cand
}

// mergeNearDuplicates collapses candidates that target the same claim:
// within one section, sharing an anchor quote or a target reference id
// means they describe the same spot in the text. The merged item keeps
// the higher-precedence action type.
func mergeNearDuplicates(cands []Candidate) []Candidate {
	type claimKey struct{ section, value string }
	byAnchor := make(map[claimKey]int)
	byRef := make(map[claimKey]int)

	var merged []Candidate
	for _, cand := range cands {
		section := strings.ToLower(cand.SectionTitle)

		idx := -1
		if quote := strings.ToLower(cand.AnchorQuote); quote != "" {
			if i, ok := byAnchor[claimKey{section, quote}]; ok {
				idx = i
			}
		}
		if idx < 0 {
			for _, id := range cand.RefIDs {
				if i, ok := byRef[claimKey{section, id}]; ok {
					idx = i
					break
				}
			}
		}

		if idx < 0 {
			idx = len(merged)
			merged = append(merged, cand)
		} else {
			merged[idx] = mergeCandidates(merged[idx], cand)
		}

		if quote := strings.ToLower(merged[idx].AnchorQuote); quote != "" {
			byAnchor[claimKey{section, quote}] = idx
		}
		for _, id := range merged[idx].RefIDs {
			byRef[claimKey{section, id}] = idx
		}
	}
	return merged
}

// mergeCandidates keeps the candidate whose action type ranks higher
// and folds the other's targets in. Precedence ties keep the earlier
// candidate.
func mergeCandidates(a, b Candidate) Candidate {
	winner, loser := a, b
	if domain.ActionPrecedence(b.ActionType) > domain.ActionPrecedence(a.ActionType) {
		winner, loser = b, a
	}
	winner.RefIDs = cleanRefIDs(append(append([]string(nil), winner.RefIDs...), loser.RefIDs...))
	if winner.AnchorQuote == "" {
		winner.AnchorQuote = loser.AnchorQuote
	}
	if winner.HintInt == 0 {
		winner.HintInt = loser.HintInt
	}
	if winner.HintLabel == "" {
		winner.HintLabel = loser.HintLabel
	}
	return winner
}

func dedupeKey(cand Candidate) string {
	ids := make([]string, len(cand.RefIDs))
	copy(ids, cand.RefIDs)
	sort.Strings(ids)
	return strings.Join([]string{
		strings.ToLower(cand.SectionTitle),
		string(cand.ActionType),
		strings.Join(ids, ","),
		strings.ToLower(cand.Action),
	}, "\x00")
}

func scoreCandidate(cand Candidate, inPaper map[string]bool) int {
	score := domain.ActionPrecedence(cand.ActionType)

	if cand.HintInt >= 1 {
		bonus := hintIntBonusCeil - hintIntBonusFactor*cand.HintInt
		if bonus > 0 {
			score += bonus
		}
	} else {
		switch strings.ToLower(strings.TrimSpace(cand.HintLabel)) {
		case "high":
			score += hintHighBonus
		case "medium":
			score += hintMediumBonus
		}
	}

	for _, id := range cand.RefIDs {
		if !inPaper[id] {
			score += notInPaperBonus
			break
		}
	}
	if cand.AnchorQuote != "" {
		score += anchorQuoteBonus
	}
	if strings.HasSuffix(cand.Source, "_llm") {
		score += llmSourcedBonus
	}
	return score
}

func publicItem(cand Candidate) domain.RecommendationItem {
	return domain.RecommendationItem{
		SectionTitle: cand.SectionTitle,
		ActionType:   cand.ActionType,
		Action:       cand.Action,
		Why:          cand.Why,
		Where:        cand.Where,
		AnchorQuote:  cand.AnchorQuote,
		RefIDs:       cand.RefIDs,
	}
}

func defaultOverview(actions []domain.RecommendationItem) string {
	if len(actions) == 0 {
		return "No recommendations were generated for this run."
	}
	top := actions[0]
	section := top.SectionTitle
	if section == "" {
		section = "the manuscript"
	}
	return "Start with " + section + ": " + top.Action
}

// cleanRefIDs trims, dedupes, and canonicalizes targets. Entry ids
// ("r12") normalize to upper case; provider node ids pass through.
func cleanRefIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.Trim(strings.TrimSpace(id), "[]")
		if entryIDRe.MatchString(id) {
			id = strings.ToUpper(id)
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
