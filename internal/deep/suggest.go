package deep

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
)

const (
	// maxSubgraphHops and maxSubgraphNodes bound each section's local
	// subgraph around the references it cites.
	maxSubgraphHops  = 3
	maxSubgraphNodes = 200

	// maxPlanCalls caps per-run section drafting calls;
	// maxSectionExcerptChars bounds each prompt's excerpt.
	maxPlanCalls           = 8
	maxSectionExcerptChars = 1200

	// maxPromptRefs bounds the reference list shown per section plan.
	maxPromptRefs = 12

	// maxAddCandidates caps integration suggestions per section.
	maxAddCandidates = 3

	// anchor sentences shorter than minAnchorLen carry too little
	// context to locate; longer ones clip at maxAnchorLen.
	minAnchorLen        = 30
	maxAnchorLen        = 220
	maxAnchorCandidates = 5
)

var sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)

const sectionPlanSystemPrompt = `You draft citation-revision suggestions for one manuscript section.
Use only the provided reference ids. Action types: add, strengthen, justify, reconsider.
Items of type "add" may only target references not yet cited in this section.
Respond with JSON only:
{"items": [{"action_type": "add", "action": "...", "why": "...", "where": "...", "anchor_quote": "...", "rids": ["R1"], "priority": "high"}]}.`

type sectionPlanItem struct {
	ActionType  string   `json:"action_type" validate:"required"`
	Action      string   `json:"action" validate:"required"`
	Why         string   `json:"why"`
	Where       string   `json:"where"`
	AnchorQuote string   `json:"anchor_quote"`
	RIDs        []string `json:"rids"`
	Priority    string   `json:"priority"`
}

type sectionPlanResponse struct {
	Items []sectionPlanItem `json:"items" validate:"required,dive"`
}

// sectionRef is one work in a section's local subgraph: the document's
// own references carry their entry id, pool works their node id.
type sectionRef struct {
	ID       string
	NodeID   string
	Distance int
	InPaper  bool
	Cited    bool
}

// buildCandidates assembles recommendation candidates per section. Each
// section gets a local subgraph bounded to maxSubgraphHops around the
// references it cites; a drafting call plans the section when the LLM
// and budget allow, a deterministic plan otherwise. Heuristic
// candidates alone still give a complete result.
func buildCandidates(ctx context.Context, client llm.Client, budget *llm.Budget, logger zerolog.Logger,
	g *Graph, sections []Section, cats domain.ReferenceCategories,
	refByNode, nodeByRef map[string]string,
	citedBySection map[string][]string, mentionSectionOf func(string) string) []Candidate {

	var out []Candidate

	// Loosely connected own references: suggest reassessing them where
	// they are cited.
	for _, nodeID := range cats.TangentialCitations {
		refID, ok := refByNode[nodeID]
		if !ok {
			continue
		}
		section := mentionSectionOf(refID)
		out = append(out, Candidate{
			SectionTitle: section,
			ActionType:   domain.ActionReconsider,
			Action:       fmt.Sprintf("Reassess whether reference %s supports the claims it is attached to; it sits at the edge of the citation network around this work.", refID),
			Why:          "Loosely connected references often signal a citation carried over without a direct evidential link.",
			RefIDs:       []string{refID},
			Source:       "network_heuristic",
		})
	}

	adj := g.undirected()
	neighborhoods := make([][]sectionRef, len(sections))
	for i, s := range sections {
		var seeds []string
		for _, refID := range citedBySection[s.Title] {
			if nodeID, ok := nodeByRef[refID]; ok {
				seeds = append(seeds, nodeID)
			}
		}
		neighborhoods[i] = sectionNeighborhood(g, adj, seeds, refByNode)
	}

	out = append(out, highlyConnectedAdds(sections, neighborhoods, cats, refByNode)...)

	planned := make(map[int]bool, len(sections))
	if client != nil && budget != nil {
		order := planOrder(neighborhoods)
		if len(order) > maxPlanCalls {
			order = order[:maxPlanCalls]
		}
		for _, i := range order {
			drafted, err := draftSectionPlanWithLLM(ctx, client, budget, sections[i], neighborhoods[i])
			if err != nil {
				logger.Debug().Err(err).Str("section", sections[i].Title).Msg("section plan drafting skipped")
				if errors.Is(err, domain.ErrBudgetExhausted) {
					break
				}
				continue
			}
			out = append(out, drafted...)
			planned[i] = true
		}
	}

	for i := range sections {
		if planned[i] {
			continue
		}
		out = append(out, heuristicSectionPlan(sections[i], neighborhoods[i])...)
	}
	return out
}

// boundedDistances runs a multi-source BFS over the undirected graph,
// stopping at maxHops and capping the visited set at maxNodes.
func boundedDistances(g *Graph, adj [][]int, seeds []string, maxHops, maxNodes int) map[string]int {
	dist := make(map[int]int)
	queue := make([]int, 0, len(seeds))
	for _, id := range seeds {
		idx := g.Index(id)
		if idx < 0 {
			continue
		}
		if _, ok := dist[idx]; ok {
			continue
		}
		dist[idx] = 0
		queue = append(queue, idx)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[cur]
		if d >= maxHops {
			continue
		}
		for _, nb := range adj[cur] {
			if _, seen := dist[nb]; seen {
				continue
			}
			if len(dist) >= maxNodes {
				queue = queue[:0]
				break
			}
			dist[nb] = d + 1
			queue = append(queue, nb)
		}
	}

	out := make(map[string]int, len(dist))
	for idx, d := range dist {
		out[g.ids[idx]] = d
	}
	return out
}

// sectionNeighborhood resolves a section's bounded subgraph into
// sectionRefs ordered by distance, with ids breaking ties.
func sectionNeighborhood(g *Graph, adj [][]int, seeds []string, refByNode map[string]string) []sectionRef {
	dist := boundedDistances(g, adj, seeds, maxSubgraphHops, maxSubgraphNodes)
	refs := make([]sectionRef, 0, len(dist))
	for nodeID, d := range dist {
		id := nodeID
		inPaper := false
		if refID, ok := refByNode[nodeID]; ok {
			id = refID
			inPaper = true
		}
		refs = append(refs, sectionRef{
			ID:       id,
			NodeID:   nodeID,
			Distance: d,
			InPaper:  inPaper,
			Cited:    d == 0,
		})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Distance != refs[j].Distance {
			return refs[i].Distance < refs[j].Distance
		}
		return refs[i].ID < refs[j].ID
	})
	return refs
}

// highlyConnectedAdds places each influential uncited pool paper into
// the section whose subgraph holds it closest. Pool papers outside
// every section's subgraph are skipped; without sections the placement
// has nowhere to go and candidates fall back to an untitled section.
func highlyConnectedAdds(sections []Section, neighborhoods [][]sectionRef, cats domain.ReferenceCategories, refByNode map[string]string) []Candidate {
	type placement struct {
		section  int
		distance int
	}
	best := make(map[string]placement)
	for i, refs := range neighborhoods {
		for _, ref := range refs {
			if ref.InPaper {
				continue
			}
			p, ok := best[ref.NodeID]
			if !ok || ref.Distance < p.distance {
				best[ref.NodeID] = placement{section: i, distance: ref.Distance}
			}
		}
	}

	var out []Candidate
	added := 0
	for _, nodeID := range cats.HighlyConnected {
		if _, own := refByNode[nodeID]; own {
			continue
		}
		title := ""
		if p, ok := best[nodeID]; ok {
			title = sections[p.section].Title
		} else if len(sections) > 0 {
			continue
		}
		out = append(out, Candidate{
			SectionTitle: title,
			ActionType:   domain.ActionAdd,
			Action:       fmt.Sprintf("Consider engaging with %s, a frequently cited work in the surrounding literature that the manuscript does not reference.", nodeID),
			Why:          "Highly cited neighbours of your key references usually anchor the debate the manuscript enters.",
			RefIDs:       []string{nodeID},
			Source:       "network_heuristic",
		})
		added++
		if added >= maxAddCandidates {
			break
		}
	}
	return out
}

// planOrder ranks sections for drafting: most seed citations first,
// then largest subgraph, then document order.
func planOrder(neighborhoods [][]sectionRef) []int {
	seeds := make([]int, len(neighborhoods))
	for i, refs := range neighborhoods {
		for _, ref := range refs {
			if ref.Cited {
				seeds[i]++
			}
		}
	}
	order := make([]int, len(neighborhoods))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if seeds[ia] != seeds[ib] {
			return seeds[ia] > seeds[ib]
		}
		if len(neighborhoods[ia]) != len(neighborhoods[ib]) {
			return len(neighborhoods[ia]) > len(neighborhoods[ib])
		}
		return ia < ib
	})
	return order
}

// draftSectionPlanWithLLM runs one drafting call for a section. Items
// naming references outside the section's subgraph are dropped, and
// add-type items only keep targets not already cited in the section.
func draftSectionPlanWithLLM(ctx context.Context, client llm.Client, budget *llm.Budget,
	section Section, refs []sectionRef) ([]Candidate, error) {

	if err := budget.Spend("deep"); err != nil {
		return nil, err
	}

	shown := refs
	if len(shown) > maxPromptRefs {
		shown = shown[:maxPromptRefs]
	}
	allowed := make(map[string]bool, len(shown))
	addEligible := make(map[string]bool, len(shown))
	var rb strings.Builder
	for _, ref := range shown {
		allowed[ref.ID] = true
		if !ref.Cited && ref.Distance > 0 {
			addEligible[ref.ID] = true
		}
		fmt.Fprintf(&rb, "- %s (distance %d, cited_in_section=%t, in_paper=%t)\n",
			ref.ID, ref.Distance, ref.Cited, ref.InPaper)
	}

	result, err := client.Complete(ctx, llm.Request{
		System: sectionPlanSystemPrompt,
		User: fmt.Sprintf("Section: %s\n\n%s\n\nNearby references:\n%s",
			section.Title, clip(collapse(section.Text), maxSectionExcerptChars), orNA(rb.String())),
	})
	if err != nil {
		return nil, err
	}

	var resp sectionPlanResponse
	if err := llm.DecodeInto(result.Content, &resp); err != nil {
		return nil, err
	}

	var out []Candidate
	for _, item := range resp.Items {
		actionType := domain.RecommendationAction(strings.ToLower(collapse(item.ActionType)))
		var rids []string
		for _, rid := range item.RIDs {
			rid = strings.Trim(strings.TrimSpace(rid), "[]")
			if entryIDRe.MatchString(rid) {
				rid = strings.ToUpper(rid)
			}
			if !allowed[rid] {
				continue
			}
			if actionType == domain.ActionAdd && !addEligible[rid] {
				continue
			}
			rids = append(rids, rid)
		}
		// An item whose every target was filtered out has nothing left
		// to point at.
		if len(item.RIDs) > 0 && len(rids) == 0 {
			continue
		}
		out = append(out, Candidate{
			SectionTitle: section.Title,
			ActionType:   actionType,
			Action:       item.Action,
			Why:          item.Why,
			Where:        item.Where,
			AnchorQuote:  item.AnchorQuote,
			RefIDs:       rids,
			HintLabel:    item.Priority,
			Source:       "section_plan_llm",
		})
	}
	return out, nil
}

// heuristicSectionPlan is the deterministic fallback plan: two generic
// improvements anchored to the section's own sentences, plus
// integration candidates for nearby references the section does not
// cite. A reference cited elsewhere in the paper still qualifies for
// integration here.
func heuristicSectionPlan(section Section, refs []sectionRef) []Candidate {
	anchors := anchorCandidates(section.Text)
	primary, secondary := "", ""
	if len(anchors) > 0 {
		primary = anchors[0]
		secondary = primary
	}
	if len(anchors) > 1 {
		secondary = anchors[1]
	}

	out := []Candidate{
		{
			SectionTitle: section.Title,
			ActionType:   domain.ActionStrengthen,
			Action:       "State the section's central claim in one direct sentence.",
			Why:          "Readers need the claim to be explicit before weighing the evidence.",
			Where:        "At the first sentence that states the section's goal.",
			AnchorQuote:  primary,
			Source:       "section_heuristic",
		},
		{
			SectionTitle: section.Title,
			ActionType:   domain.ActionJustify,
			Action:       "Add one sentence explaining why each major citation supports the claim.",
			Why:          "Explicit rationale prevents citation dumping and improves traceability.",
			Where:        "Immediately after the sentence introducing each major citation.",
			AnchorQuote:  secondary,
			Source:       "section_heuristic",
		},
	}

	uncited := make([]sectionRef, 0, len(refs))
	for _, ref := range refs {
		if !ref.Cited && ref.Distance > 0 {
			uncited = append(uncited, ref)
		}
	}
	sort.SliceStable(uncited, func(i, j int) bool {
		if uncited[i].InPaper != uncited[j].InPaper {
			return uncited[i].InPaper
		}
		if uncited[i].Distance != uncited[j].Distance {
			return uncited[i].Distance < uncited[j].Distance
		}
		return uncited[i].ID < uncited[j].ID
	})
	for i, ref := range uncited {
		if i >= maxAddCandidates {
			break
		}
		anchor := ""
		if len(anchors) > 0 {
			anchor = anchors[i%len(anchors)]
		}
		out = append(out, Candidate{
			SectionTitle: section.Title,
			ActionType:   domain.ActionAdd,
			Action:       fmt.Sprintf("Integrate %s to support the nearby claim.", ref.ID),
			Why:          "This work sits close to the section's citations and can strengthen local support.",
			Where:        "After the sentence that introduces the related concept.",
			AnchorQuote:  anchor,
			RefIDs:       []string{ref.ID},
			HintLabel:    "medium",
			Source:       "section_heuristic",
		})
	}
	return out
}

// anchorCandidates picks up to maxAnchorCandidates quotable sentences
// from a section, skipping fragments and clipping run-ons.
func anchorCandidates(text string) []string {
	text = collapse(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		sentences = append(sentences, strings.TrimSpace(text[start:loc[0]+1]))
		start = loc[1]
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}

	var out []string
	for _, sentence := range sentences {
		if len(sentence) < minAnchorLen {
			continue
		}
		if len(sentence) > maxAnchorLen {
			sentence = strings.TrimSpace(sentence[:maxAnchorLen-3]) + "..."
		}
		out = append(out, sentence)
		if len(out) >= maxAnchorCandidates {
			break
		}
	}
	return out
}
