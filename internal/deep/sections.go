package deep

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/llm"
)

const (
	maxHeadingLineLen = 120
	maxHeadingWords   = 14

	// maxHeadingCandidates bounds the candidate list shown to the LLM.
	maxHeadingCandidates = 120
)

var (
	figurePrefixRe    = regexp.MustCompile(`(?i)^(figure|fig\.|table|appendix|supplement|supp\.|equation|eq\.)\b`)
	urlHintRe         = regexp.MustCompile(`(?i)https?://`)
	doiHintRe         = regexp.MustCompile(`(?i)\b10\.\d{4,9}/\S+`)
	numberingPrefixRe = regexp.MustCompile(`(?i)^\s*(\(?\d+(?:\.\d+){0,6}\)?|[IVXLC]+)\s*[\.\)\-:]\s+`)
)

var canonicalHeadings = []string{
	"introduction", "methods", "results", "discussion", "conclusion", "abstract",
}

// Section is one structural unit of the manuscript body. The preamble
// before the first heading becomes an "opening" section.
type Section struct {
	ID    string
	Title string
	Level int
	Text  string
}

type headingCandidate struct {
	line   int
	indent int
	text   string
	score  int
}

type heading struct {
	line  int
	title string
	level int
}

const sectionSystemPrompt = `You identify real section headings in a manuscript from a candidate list.
Each candidate is "line | indent=N | text". Pick only genuine headings, in increasing line order, never renaming them.
Respond with JSON only: {"headings": [{"line": 12, "title": "Methods", "level": 1}, ...], "notes": []}.`

type sectionHeading struct {
	Line  int    `json:"line" validate:"gt=0"`
	Title string `json:"title" validate:"required"`
	Level int    `json:"level"`
}

type sectionResponse struct {
	Headings []sectionHeading `json:"headings" validate:"required,min=1,dive"`
	Notes    []string         `json:"notes"`
}

// extractSections splits the manuscript body into titled sections. The
// heading candidates come from a deterministic scoring heuristic; when
// an LLM is available one validated call selects among them, otherwise
// the heuristic's own top candidates are used directly. Chosen titles
// always snap back to the candidate's exact text.
func extractSections(ctx context.Context, client llm.Client, budget *llm.Budget, logger zerolog.Logger, text string) []Section {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	candidates := headingCandidates(lines)
	if len(candidates) == 0 {
		return nil
	}

	var headings []heading
	if client != nil && budget != nil {
		selected, err := selectHeadingsWithLLM(ctx, client, budget, candidates, len(lines))
		if err != nil {
			logger.Debug().Err(err).Msg("section structuring fell back to heuristic headings")
		} else {
			headings = selected
		}
	}
	if len(headings) == 0 {
		headings = heuristicHeadings(candidates)
	}
	if len(headings) == 0 {
		return nil
	}
	return sectionsFromHeadings(lines, headings)
}

// headingCandidates scores every plausible heading line. A candidate
// must be short, free of URLs/DOIs and figure prefixes, and must not
// end like a sentence; numbering prefixes, blank-line adjacency,
// ALL-CAPS, and canonical section names add score.
func headingCandidates(lines []string) []headingCandidate {
	isBlank := func(idx int) bool {
		if idx < 0 || idx >= len(lines) {
			return true
		}
		return strings.TrimSpace(lines[idx]) == ""
	}

	var out []headingCandidate
	for idx, raw := range lines {
		text := strings.TrimSpace(raw)
		if text == "" || len(text) > maxHeadingLineLen || len(strings.Fields(text)) > maxHeadingWords {
			continue
		}
		if urlHintRe.MatchString(text) || doiHintRe.MatchString(text) || figurePrefixRe.MatchString(text) {
			continue
		}
		if strings.HasSuffix(text, ".") || strings.HasSuffix(text, ";") || strings.HasSuffix(text, ",") {
			continue
		}

		score := 0
		if numberingPrefixRe.MatchString(text) {
			score += 4
		}
		prevBlank, nextBlank := isBlank(idx-1), isBlank(idx+1)
		switch {
		case prevBlank && nextBlank:
			score += 3
		case prevBlank || nextBlank:
			score++
		}
		if text == strings.ToUpper(text) && text != strings.ToLower(text) && len(text) >= 5 {
			score += 2
		}
		lower := strings.ToLower(text)
		for _, name := range canonicalHeadings {
			if strings.Contains(lower, name) {
				score++
				break
			}
		}
		if score <= 0 {
			continue
		}
		out = append(out, headingCandidate{
			line:   idx + 1,
			indent: len(raw) - len(strings.TrimLeft(raw, " \t")),
			text:   text,
			score:  score,
		})
	}

	if len(out) > maxHeadingCandidates {
		sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
		out = out[:maxHeadingCandidates]
		sort.SliceStable(out, func(i, j int) bool { return out[i].line < out[j].line })
	}
	return out
}

// selectHeadingsWithLLM runs one validated structuring call. Returned
// headings must reference candidate lines, strictly increase, and take
// the candidate's exact text regardless of what the model titled them.
func selectHeadingsWithLLM(ctx context.Context, client llm.Client, budget *llm.Budget, candidates []headingCandidate, totalLines int) ([]heading, error) {
	if err := budget.Spend("deep"); err != nil {
		return nil, err
	}

	byLine := make(map[int]string, len(candidates))
	var sb strings.Builder
	for _, c := range candidates {
		byLine[c.line] = c.text
		fmt.Fprintf(&sb, "%d | indent=%d | %s\n", c.line, c.indent, c.text)
	}

	result, err := client.Complete(ctx, llm.Request{
		System: sectionSystemPrompt,
		User:   "Candidates:\n" + sb.String(),
	})
	if err != nil {
		return nil, err
	}

	var resp sectionResponse
	if err := llm.DecodeInto(result.Content, &resp); err != nil {
		return nil, err
	}

	var out []heading
	lastLine := 0
	for _, h := range resp.Headings {
		if h.Line <= lastLine || h.Line > totalLines {
			continue
		}
		title, ok := byLine[h.Line]
		if !ok {
			continue
		}
		level := h.Level
		if level < 1 {
			level = 1
		} else if level > 6 {
			level = 6
		}
		out = append(out, heading{line: h.Line, title: title, level: level})
		lastLine = h.Line
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("structuring call returned no usable headings")
	}
	return out, nil
}

// heuristicHeadings keeps the stronger candidates in line order.
func heuristicHeadings(candidates []headingCandidate) []heading {
	minScore := 3
	strong := 0
	for _, c := range candidates {
		if c.score >= minScore {
			strong++
		}
	}
	if strong < 2 {
		minScore = 1
	}
	var out []heading
	for _, c := range candidates {
		if c.score < minScore {
			continue
		}
		out = append(out, heading{line: c.line, title: c.text, level: 1})
	}
	return out
}

// sectionsFromHeadings slices the body at the heading lines. Headings
// are already strictly increasing; empty bodies are dropped and ids
// renumbered sequentially.
func sectionsFromHeadings(lines []string, headings []heading) []Section {
	var out []Section

	first := headings[0].line
	if first > 1 {
		preamble := strings.TrimSpace(strings.Join(lines[:first-1], "\n"))
		if preamble != "" {
			out = append(out, Section{Title: "opening", Level: 1, Text: preamble})
		}
	}

	for i, h := range headings {
		start := h.line
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].line - 1
		}
		if start > len(lines) {
			start = len(lines)
		}
		body := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if body == "" {
			continue
		}
		out = append(out, Section{Title: h.title, Level: h.level, Text: body})
	}

	for i := range out {
		out[i].ID = fmt.Sprintf("S%d", i+1)
	}
	return out
}
