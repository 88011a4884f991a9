package parse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
)

var (
	refNumberRe = regexp.MustCompile(`^\s*(?:\[(\d{1,4})\]\s*|(\d{1,4})[\).]\s+)`)

	arxivIDRe = regexp.MustCompile(
		`(?i)arxiv[:\s]*((?:\d{4}\.\d{4,5})|(?:[a-z\-]+(?:\.[A-Z]{2})?/\d{7}))(?:v\d+)?`)
	pmidRe = regexp.MustCompile(`(?i)\bpmid[:\s]*(\d{1,9})`)

	entryYearRe = regexp.MustCompile(`\(?\b((?:19|20)\d{2})[a-z]?\b\)?`)

	volumeIssuePagesRe = regexp.MustCompile(
		`\b(\d{1,4})\s*\((\d{1,4}[^)]*)\)\s*[,:]\s*([\d]+(?:\s*[-–]\s*\d+)?)`)
	pagesRe = regexp.MustCompile(`\bpp?\.\s*(\d+(?:\s*[-–]\s*\d+)?)`)

	andSeparatorRe = regexp.MustCompile(`(?i)\s+and\s+`)
)

// parseBibliography splits the reference-list text into entries and
// extracts per-entry fields. Entry boundaries come from numbered lines
// and blank-line separation; when neither yields a plausible split the
// LLM fallback delineates the block.
func (p *Parser) parseBibliography(ctx context.Context, refs string) ([]domain.BibliographyEntry, error) {
	refs = strings.TrimSpace(refs)
	if refs == "" {
		return nil, nil
	}

	blocks := splitEntries(refs)

	if needsDelineation(blocks) && p.llm != nil {
		delineated, err := p.delineateWithLLM(ctx, refs)
		switch {
		case err == nil && len(delineated) > 1:
			blocks = delineated
		case err != nil && !errors.Is(err, domain.ErrBudgetExhausted):
			p.logger.Warn().Err(err).Msg("bibliography delineation fallback failed")
		}
	}

	entries := make([]domain.BibliographyEntry, 0, len(blocks))
	for i, raw := range blocks {
		entry := parseEntry(raw)
		entry.ID = "R" + strconv.Itoa(i+1)
		entries = append(entries, entry)
	}
	return entries, nil
}

// splitEntries blocks the reference text on blank lines and on lines
// that open with a reference number. Continuation lines are folded into
// the current entry.
func splitEntries(refs string) []string {
	var blocks []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.TrimSpace(strings.Join(current, " "))
		if joined != "" {
			blocks = append(blocks, joined)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(refs, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if refNumberRe.MatchString(line) {
			flush()
		}
		current = append(current, trimmed)
	}
	flush()
	return blocks
}

// needsDelineation reports whether the heuristic split likely merged
// multiple references into one block.
func needsDelineation(blocks []string) bool {
	if len(blocks) == 0 {
		return false
	}
	if len(blocks) == 1 && len(blocks[0]) > 300 {
		return true
	}
	long := 0
	for _, b := range blocks {
		if len(b) > 600 {
			long++
		}
	}
	return long*2 > len(blocks)
}

type delineationResponse struct {
	Entries []string `json:"entries" validate:"required,min=1,dive,min=10"`
}

const delineationSystemPrompt = `You split academic reference lists into individual entries.
Respond with JSON only: {"entries": ["<entry 1>", "<entry 2>", ...]}.
Copy entry text verbatim. Do not invent, merge, or reorder entries.`

// delineateWithLLM asks the LLM to split a reference block whose entry
// boundaries the layout heuristics could not find. The call is metered;
// budget exhaustion falls back to the heuristic blocks.
func (p *Parser) delineateWithLLM(ctx context.Context, refs string) ([]string, error) {
	if err := p.budget.Spend("parse"); err != nil {
		return nil, err
	}

	const maxDelineationInput = 12000
	if len(refs) > maxDelineationInput {
		refs = refs[:maxDelineationInput]
	}

	result, err := p.llm.Complete(ctx, llm.Request{
		Operation: "bibliography_delineation",
		System:    delineationSystemPrompt,
		User:      "Reference list:\n\n" + refs,
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("delineating bibliography: %w", err)
	}

	var resp delineationResponse
	if err := llm.DecodeInto(result.Content, &resp); err != nil {
		return nil, fmt.Errorf("decoding delineation response: %w", err)
	}

	out := make([]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		if trimmed := strings.TrimSpace(e); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// parseEntry extracts structured fields from one raw reference entry.
// Extraction is best-effort; identifiers and the author-year pair are
// what matching and resolution depend on, the rest is display data.
func parseEntry(raw string) domain.BibliographyEntry {
	entry := domain.BibliographyEntry{Raw: raw}
	rest := raw

	if m := refNumberRe.FindStringSubmatch(raw); m != nil {
		numStr := m[1]
		if numStr == "" {
			numStr = m[2]
		}
		if n, err := strconv.Atoi(numStr); err == nil {
			entry.Number = n
		}
		rest = strings.TrimSpace(refNumberRe.ReplaceAllString(raw, ""))
	}

	entry.Identifiers.DOI = NormalizeDOI(rest)
	if m := arxivIDRe.FindStringSubmatch(rest); m != nil {
		entry.Identifiers.ArXivID = strings.ToLower(m[1])
	}
	if m := pmidRe.FindStringSubmatch(rest); m != nil {
		entry.Identifiers.PubMedID = m[1]
	}

	yearLoc := findEntryYear(rest)
	if yearLoc != nil {
		entry.Year, _ = strconv.Atoi(rest[yearLoc[2]:yearLoc[3]])
	}

	authorSegment := rest
	if yearLoc != nil {
		authorSegment = rest[:yearLoc[0]]
	}
	entry.Authors = splitAuthors(authorSegment)
	if len(entry.Authors) > 0 {
		entry.FirstAuthor = NormalizeAuthorName(FirstSurnameToken(entry.Authors[0]))
	}

	if yearLoc != nil {
		entry.Title, entry.Venue = splitTitleVenue(rest[yearLoc[1]:])
	}

	if m := volumeIssuePagesRe.FindStringSubmatch(rest); m != nil {
		entry.Volume, entry.Issue, entry.Pages = m[1], m[2], m[3]
	} else if m := pagesRe.FindStringSubmatch(rest); m != nil {
		entry.Pages = m[1]
	}

	return entry
}

// findEntryYear locates the first plausible publication year, skipping
// four-digit runs that continue into a decimal (arXiv IDs, DOIs).
func findEntryYear(rest string) []int {
	offset := 0
	for {
		loc := entryYearRe.FindStringSubmatchIndex(rest[offset:])
		if loc == nil {
			return nil
		}
		absEnd := offset + loc[3]
		if absEnd+1 < len(rest) && rest[absEnd] == '.' && rest[absEnd+1] >= '0' && rest[absEnd+1] <= '9' {
			offset = absEnd
			continue
		}
		return []int{offset + loc[0], offset + loc[1], offset + loc[2], offset + loc[3]}
	}
}

// splitAuthors breaks the pre-year author segment into individual
// names. Trailing "et al." and editor markers are dropped.
func splitAuthors(segment string) []string {
	segment = strings.TrimSpace(segment)
	segment = strings.TrimRight(segment, ".,;(")
	if segment == "" {
		return nil
	}

	lower := strings.ToLower(segment)
	if idx := strings.Index(lower, " et al"); idx >= 0 {
		segment = segment[:idx]
	}

	segment = strings.ReplaceAll(segment, " & ", ";")
	segment = andSeparatorRe.ReplaceAllString(segment, ";")

	var parts []string
	for _, chunk := range strings.Split(segment, ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if strings.Contains(chunk, ",") {
			// "Smith, J., Lee, K." alternates surnames and initials
			// on commas; pair them back up.
			parts = append(parts, pairCommaAuthors(strings.Split(chunk, ","))...)
		} else {
			parts = append(parts, chunk)
		}
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ", ")
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

var initialsRe = regexp.MustCompile(`^\s*(?:[A-Z]\.?\s*){1,3}$`)

func pairCommaAuthors(parts []string) []string {
	var out []string
	for i := 0; i < len(parts); i++ {
		name := strings.TrimSpace(parts[i])
		if name == "" {
			continue
		}
		if i+1 < len(parts) && initialsRe.MatchString(parts[i+1]) {
			name = name + ", " + strings.TrimSpace(parts[i+1])
			i++
		}
		out = append(out, name)
	}
	return out
}

// splitTitleVenue takes the text after the year and returns the first
// sentence as the title and the next as the venue.
func splitTitleVenue(after string) (title, venue string) {
	after = strings.TrimLeft(strings.TrimSpace(after), ").,;: ")
	if after == "" {
		return "", ""
	}
	parts := strings.SplitN(after, ". ", 3)
	title = strings.TrimSpace(strings.TrimSuffix(parts[0], "."))
	if len(parts) > 1 {
		venue = strings.TrimSpace(strings.TrimSuffix(parts[1], "."))
		venue = strings.TrimRight(venue, ",;")
	}
	return title, venue
}
