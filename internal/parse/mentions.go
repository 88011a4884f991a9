package parse

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

var (
	numericCitationRe = regexp.MustCompile(
		`\[(\d+(?:\s*[-–]\s*\d+)?(?:\s*,\s*\d+(?:\s*[-–]\s*\d+)?)*)\]`)

	narrativeCitationRe = regexp.MustCompile(
		`\b([A-Z][A-Za-z'’\-]+)` +
			`((?:\s+(?:and|&)\s+[A-Z][A-Za-z'’\-]+)?(?:\s+et\s+al\.?)?)` +
			`\s*\(\s*((?:19|20)\d{2}[a-z]?)\s*\)`)

	parentheticalRe = regexp.MustCompile(
		`\(([^()]*?(?:19|20)\d{2}[a-z]?[^()]*)\)`)

	parentheticalItemRe = regexp.MustCompile(
		`^\s*(.+?),?\s+((?:19|20)\d{2}[a-z]?)` +
			`\s*(?:,\s*(p{1,2}\.?\s*\d+(?:\s*[-–]\s*\d+)?|ch(?:ap)?\.?\s*\d+))?\s*$`)

	yearTokenRe = regexp.MustCompile(`^((?:19|20)\d{2})([a-z]?)$`)

	trailingYearTokenRe = regexp.MustCompile(`(?:,\s*|\s+)((?:19|20)\d{2}[a-z]?)$`)
)

// citationNameStopwords are connective tokens that look like surnames
// inside parenthetical citations ("see also Smith, 2020").
var citationNameStopwords = map[string]struct{}{
	"see": {}, "also": {}, "cf": {}, "eg": {}, "e": {}, "g": {}, "al": {}, "et": {},
}

// maxNumericRangeSpan bounds "[a-b]" expansion; anything wider is a
// page range or a typo, not a citation list.
const maxNumericRangeSpan = 200

// maxContextChars caps the sentence context retained per mention.
const maxContextChars = 600

type rawMention struct {
	raw    string
	system domain.CitationSystem
	start  int
	end    int
	atoms  []domain.CitationAtom
}

// extractMentions finds every in-text citation marker in body and
// splits multi-work markers into atoms. Mentions come back sorted by
// offset with IDs assigned in document order.
func extractMentions(body string) []domain.CitationMention {
	var found []rawMention
	found = append(found, extractNumericMentions(body)...)

	narrative := extractNarrativeMentions(body)
	found = append(found, narrative...)
	found = append(found, extractParentheticalMentions(body, narrative)...)
	found = append(found, extractNoteMarkers(body)...)

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })

	mentions := make([]domain.CitationMention, 0, len(found))
	for i, rm := range found {
		mentions = append(mentions, domain.CitationMention{
			ID:      "M" + strconv.Itoa(i+1),
			Raw:     rm.raw,
			System:  rm.system,
			Offset:  rm.start,
			Context: sentenceContext(body, rm.start, rm.end),
			Atoms:   rm.atoms,
		})
	}
	return mentions
}

func extractNumericMentions(body string) []rawMention {
	var out []rawMention
	for _, loc := range numericCitationRe.FindAllStringSubmatchIndex(body, -1) {
		inner := body[loc[2]:loc[3]]
		numbers := expandNumericList(inner)
		if len(numbers) == 0 {
			continue
		}
		atoms := make([]domain.CitationAtom, 0, len(numbers))
		for _, n := range numbers {
			atoms = append(atoms, domain.CitationAtom{Number: n})
		}
		out = append(out, rawMention{
			raw:    body[loc[0]:loc[1]],
			system: domain.SystemNumeric,
			start:  loc[0],
			end:    loc[1],
			atoms:  atoms,
		})
	}
	return out
}

// expandNumericList expands "3, 7-9" into [3 7 8 9]. Reversed ranges
// are swapped; spans wider than maxNumericRangeSpan and non-positive
// values are dropped.
func expandNumericList(inner string) []int {
	var out []int
	for _, part := range strings.Split(inner, ",") {
		part = strings.ReplaceAll(strings.TrimSpace(part), "–", "-")
		lo, hi, ok := parseNumericPart(part)
		if !ok {
			continue
		}
		for n := lo; n <= hi; n++ {
			out = append(out, n)
		}
	}
	return out
}

func parseNumericPart(part string) (lo, hi int, ok bool) {
	if a, b, found := strings.Cut(part, "-"); found {
		first, err1 := strconv.Atoi(strings.TrimSpace(a))
		second, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		if second < first {
			first, second = second, first
		}
		if first <= 0 || second-first > maxNumericRangeSpan {
			return 0, 0, false
		}
		return first, second, true
	}
	n, err := strconv.Atoi(part)
	if err != nil || n <= 0 {
		return 0, 0, false
	}
	return n, n, true
}

func extractNarrativeMentions(body string) []rawMention {
	var out []rawMention
	for _, loc := range narrativeCitationRe.FindAllStringSubmatchIndex(body, -1) {
		surname := body[loc[2]:loc[3]]
		yearTok := body[loc[6]:loc[7]]
		atom, ok := authorYearAtom(surname, surname, yearTok, "")
		if !ok {
			continue
		}
		out = append(out, rawMention{
			raw:    body[loc[0]:loc[1]],
			system: domain.SystemAuthorDate,
			start:  loc[0],
			end:    loc[1],
			atoms:  []domain.CitationAtom{atom},
		})
	}
	return out
}

// extractParentheticalMentions parses "(Smith, 2020; Lee et al., 2019b)"
// containers, splitting on semicolons. Containers inside an already
// extracted narrative mention are skipped so "Merton (1968)" does not
// also yield a bare-year parenthetical.
func extractParentheticalMentions(body string, narrative []rawMention) []rawMention {
	var out []rawMention
	for _, loc := range parentheticalRe.FindAllStringSubmatchIndex(body, -1) {
		if overlapsAny(loc[0], loc[1], narrative) {
			continue
		}
		inner := body[loc[2]:loc[3]]

		var atoms []domain.CitationAtom
		for _, item := range strings.Split(inner, ";") {
			m := parentheticalItemRe.FindStringSubmatch(item)
			if m == nil {
				continue
			}
			rawAuthor := stripLeadingStopwords(strings.TrimSpace(m[1]))
			if rawAuthor == "" {
				continue
			}
			// "Smith, 2020a, 2020b" leaves the earlier years stuck to the
			// author capture; peel them off so each year gets its own atom.
			rawAuthor, innerYears := trimTrailingYearTokens(rawAuthor)
			if rawAuthor == "" {
				continue
			}
			surname := FirstSurnameToken(rawAuthor)
			for _, yearTok := range innerYears {
				if atom, ok := authorYearAtom(surname, rawAuthor, yearTok, ""); ok {
					atoms = append(atoms, atom)
				}
			}
			atom, ok := authorYearAtom(surname, rawAuthor, m[2], strings.TrimSpace(m[3]))
			if !ok {
				continue
			}
			atoms = append(atoms, atom)
		}
		if len(atoms) == 0 {
			continue
		}
		out = append(out, rawMention{
			raw:    body[loc[0]:loc[1]],
			system: domain.SystemAuthorDate,
			start:  loc[0],
			end:    loc[1],
			atoms:  atoms,
		})
	}
	return out
}

var (
	caretNoteRe       = regexp.MustCompile(`\^(\d{1,3})`)
	superscriptRunRe  = regexp.MustCompile(`[¹²³⁴⁵⁶⁷⁸⁹⁰]+`)
	superscriptDigits = map[rune]rune{
		'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
		'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9',
	}
)

// extractNoteMarkers finds footnote-style markers: caret notation and
// Unicode superscript digit runs. Each marker carries one numeric atom
// pointing at the note of the same number.
func extractNoteMarkers(body string) []rawMention {
	var out []rawMention
	for _, loc := range caretNoteRe.FindAllStringSubmatchIndex(body, -1) {
		n, err := strconv.Atoi(body[loc[2]:loc[3]])
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, rawMention{
			raw:    body[loc[0]:loc[1]],
			system: domain.SystemNotes,
			start:  loc[0],
			end:    loc[1],
			atoms:  []domain.CitationAtom{{Number: n}},
		})
	}
	for _, loc := range superscriptRunRe.FindAllStringIndex(body, -1) {
		var sb strings.Builder
		for _, r := range body[loc[0]:loc[1]] {
			sb.WriteRune(superscriptDigits[r])
		}
		n, err := strconv.Atoi(sb.String())
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, rawMention{
			raw:    body[loc[0]:loc[1]],
			system: domain.SystemNotes,
			start:  loc[0],
			end:    loc[1],
			atoms:  []domain.CitationAtom{{Number: n}},
		})
	}
	return out
}

// trimTrailingYearTokens peels year tokens off the end of a
// parenthetical author segment, returning the remaining author text and
// the peeled years in document order.
func trimTrailingYearTokens(raw string) (string, []string) {
	var years []string
	for {
		m := trailingYearTokenRe.FindStringSubmatchIndex(raw)
		if m == nil {
			break
		}
		years = append(years, raw[m[2]:m[3]])
		raw = strings.TrimSpace(raw[:m[0]])
	}
	for i, j := 0, len(years)-1; i < j; i, j = i+1, j-1 {
		years[i], years[j] = years[j], years[i]
	}
	return raw, years
}

// stripLeadingStopwords drops connective prefixes like "see also" or
// "cf." from a parenthetical author segment.
func stripLeadingStopwords(raw string) string {
	fields := strings.Fields(raw)
	i := 0
	for i < len(fields) {
		tok := NormalizeAuthorName(fields[i])
		if _, stop := citationNameStopwords[tok]; !stop {
			break
		}
		i++
	}
	return strings.Join(fields[i:], " ")
}

// authorYearAtom builds an author-date atom, rejecting connective
// tokens that masquerade as surnames.
func authorYearAtom(surname, rawAuthor, yearTok, locator string) (domain.CitationAtom, bool) {
	token := NormalizeAuthorName(surname)
	if token == "" {
		return domain.CitationAtom{}, false
	}
	if _, stop := citationNameStopwords[token]; stop {
		return domain.CitationAtom{}, false
	}
	m := yearTokenRe.FindStringSubmatch(strings.ToLower(yearTok))
	if m == nil {
		return domain.CitationAtom{}, false
	}
	year, _ := strconv.Atoi(m[1])
	return domain.CitationAtom{
		AuthorToken: token,
		RawAuthor:   rawAuthor,
		Year:        year,
		Suffix:      m[2],
		Locator:     locator,
	}, true
}

func overlapsAny(start, end int, mentions []rawMention) bool {
	for _, m := range mentions {
		if start < m.end && end > m.start {
			return true
		}
	}
	return false
}

// sentenceContext returns the sentence surrounding [start,end), bounded
// by newline or sentence punctuation and capped at maxContextChars.
func sentenceContext(body string, start, end int) string {
	lo := start
	for lo > 0 {
		c := body[lo-1]
		if c == '\n' || c == '.' || c == '?' || c == '!' {
			break
		}
		lo--
	}
	hi := end
	for hi < len(body) {
		c := body[hi]
		hi++
		if c == '\n' || c == '.' || c == '?' || c == '!' {
			break
		}
	}
	ctx := strings.TrimSpace(body[lo:hi])
	if len(ctx) > maxContextChars {
		ctx = ctx[:maxContextChars] + "…"
	}
	return ctx
}
