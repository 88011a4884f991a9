// Package parse turns manuscript text into structured citation data:
// in-text citation mentions, their single-work atoms, and parsed
// bibliography entries. Extraction is deterministic and style-aware;
// an optional LLM assists only with reference-list delineation when
// the layout heuristics cannot find entry boundaries.
package parse

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/llm"
)

// Document is the parser's output for one manuscript.
type Document struct {
	// Body is the manuscript text with the reference list removed.
	Body string

	// ReferencesRaw is the raw reference-list text, "" when absent.
	ReferencesRaw string

	// System is the dominant citation system detected in the body.
	System domain.CitationSystem

	// SecondarySystem is set when a second system appears often enough
	// that the manuscript mixes styles.
	SecondarySystem domain.CitationSystem

	Mentions     []domain.CitationMention
	Bibliography []domain.BibliographyEntry
}

// Parser extracts citation structure from plain manuscript text.
type Parser struct {
	llm    llm.Client
	budget *llm.Budget
	logger zerolog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLLM enables the LLM fallback for bibliography delineation.
// Calls are metered against the given budget.
func WithLLM(client llm.Client, budget *llm.Budget) Option {
	return func(p *Parser) {
		p.llm = client
		p.budget = budget
	}
}

// WithLogger sets the parser's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var referencesHeadingRe = regexp.MustCompile(
	`(?im)^\s*(?:\d+\.?\s+)?(references|bibliography|works cited|literature cited|reference list|endnotes|notes)\s*:?\s*$`)

// Parse extracts mentions and bibliography entries from text. HTML
// entities are decoded before any pattern matching so markers split on
// entity boundaries ("&amp;") stay intact. Offsets in the result refer
// to the decoded body.
func (p *Parser) Parse(ctx context.Context, text string) (*Document, error) {
	decoded := html.UnescapeString(strings.ReplaceAll(text, "\r\n", "\n"))

	body, refs := splitBibliography(decoded)

	doc := &Document{
		Body:          body,
		ReferencesRaw: refs,
	}

	doc.Mentions = extractMentions(body)
	doc.System, doc.SecondarySystem = detectSystem(body, doc.Mentions)

	// Notes manuscripts keep numeric atoms; the note body doubles as
	// the reference entry, so the reference-list parser still applies.
	entries, err := p.parseBibliography(ctx, refs)
	if err != nil {
		return nil, err
	}
	doc.Bibliography = entries

	p.logger.Debug().
		Str("system", string(doc.System)).
		Int("mentions", len(doc.Mentions)).
		Int("entries", len(doc.Bibliography)).
		Msg("parsed manuscript")

	return doc, nil
}

// splitBibliography separates body text from the reference list at the
// last reference-style heading. Manuscripts citing a "References"
// section mid-text keep that text in the body.
func splitBibliography(text string) (body, refs string) {
	locs := referencesHeadingRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text, ""
	}
	last := locs[len(locs)-1]
	return text[:last[0]], text[last[1]:]
}

var superscriptMarkerRe = regexp.MustCompile(`[¹²³⁴⁵⁶⁷⁸⁹⁰]+|\^\d{1,3}`)

// detectSystem picks the dominant citation system from extracted
// mentions, falling back to notes when superscript markers outnumber
// everything else. A runner-up system appearing at least three times
// and at a tenth of the dominant count is reported as secondary so the
// style-consistency check can flag mixed manuscripts.
func detectSystem(body string, mentions []domain.CitationMention) (domain.CitationSystem, domain.CitationSystem) {
	counts := map[domain.CitationSystem]int{}
	for _, m := range mentions {
		counts[m.System]++
	}
	counts[domain.SystemNotes] = len(superscriptMarkerRe.FindAllString(body, -1))

	var dominant, secondary domain.CitationSystem
	for _, sys := range []domain.CitationSystem{domain.SystemNumeric, domain.SystemAuthorDate, domain.SystemNotes} {
		if dominant == "" || counts[sys] > counts[dominant] {
			dominant = sys
		}
	}
	if counts[dominant] == 0 {
		return domain.SystemUnknown, ""
	}
	for _, sys := range []domain.CitationSystem{domain.SystemNumeric, domain.SystemAuthorDate, domain.SystemNotes} {
		if sys == dominant {
			continue
		}
		if counts[sys] >= 3 && counts[sys]*10 >= counts[dominant] {
			if secondary == "" || counts[sys] > counts[secondary] {
				secondary = sys
			}
		}
	}
	return dominant, secondary
}
