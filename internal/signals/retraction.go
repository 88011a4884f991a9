package signals

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/parse"
)

// RetractionAPI looks a DOI up against a retraction database service.
type RetractionAPI interface {
	// IsRetracted reports whether the DOI is retracted and, when known,
	// the recorded retraction reason.
	IsRetracted(ctx context.Context, doi string) (retracted bool, reason string, err error)
}

// RetractionSignal is the graded outcome of a retraction check.
type RetractionSignal struct {
	Retracted bool
	Tier      Tier

	// Sources names every agreeing evidence source ("metadata",
	// "dataset", "api").
	Sources []string

	// Reason carries the dataset's or API's retraction reason if known.
	Reason string
}

type retractionRecord struct {
	doi    string
	title  string
	reason string
}

// RetractionChecker combines the metadata flag, the CSV dataset, and
// an optional API into one graded signal. The dataset and API are the
// strong tiers; a lone provider metadata flag stays review-needed.
type RetractionChecker struct {
	byDOI   map[string]retractionRecord
	byTitle map[string]retractionRecord
	api     RetractionAPI
	logger  zerolog.Logger
}

// RetractionOption configures a RetractionChecker.
type RetractionOption func(*RetractionChecker)

// WithRetractionAPI enables the API lookup tier.
func WithRetractionAPI(api RetractionAPI) RetractionOption {
	return func(c *RetractionChecker) { c.api = api }
}

// WithRetractionLogger sets the checker's logger.
func WithRetractionLogger(logger zerolog.Logger) RetractionOption {
	return func(c *RetractionChecker) { c.logger = logger }
}

// NewRetractionChecker creates a checker over an already loaded
// dataset. A nil or empty dataset disables the dataset tier.
func NewRetractionChecker(dataset []RetractionEntry, opts ...RetractionOption) *RetractionChecker {
	c := &RetractionChecker{
		byDOI:   make(map[string]retractionRecord, len(dataset)),
		byTitle: make(map[string]retractionRecord, len(dataset)),
		logger:  zerolog.Nop(),
	}
	for _, e := range dataset {
		rec := retractionRecord{doi: parse.NormalizeDOI(e.DOI), title: normalizeName(e.Title), reason: e.Reason}
		if rec.doi != "" {
			c.byDOI[rec.doi] = rec
		}
		if rec.title != "" {
			c.byTitle[rec.title] = rec
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RetractionEntry is one row of the retraction dataset.
type RetractionEntry struct {
	DOI    string
	Title  string
	Reason string
}

// LoadRetractionDataset reads a RetractionWatch-style CSV with a
// header row of doi,title,reason columns in any order. Unknown columns
// are ignored.
func LoadRetractionDataset(path string) ([]RetractionEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening retraction dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading retraction dataset header: %w", err)
	}
	col := columnIndex(header)

	var entries []RetractionEntry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading retraction dataset row: %w", err)
		}
		entries = append(entries, RetractionEntry{
			DOI:    field(row, col, "doi"),
			Title:  field(row, col, "title"),
			Reason: field(row, col, "reason"),
		})
	}
	return entries, nil
}

// Check grades the retraction evidence for one bibliography entry.
// High confidence requires a strong source (dataset or API) or at
// least two agreeing sources.
func (c *RetractionChecker) Check(ctx context.Context, entry *domain.BibliographyEntry) RetractionSignal {
	var signal RetractionSignal
	strong := false

	if entry.Resolved != nil && entry.Resolved.IsRetracted {
		signal.Sources = append(signal.Sources, "metadata")
	}

	if rec, ok := c.lookupDataset(entry); ok {
		signal.Sources = append(signal.Sources, "dataset")
		signal.Reason = rec.reason
		strong = true
	}

	if doi := entryDOI(entry); doi != "" && c.api != nil {
		retracted, reason, err := c.api.IsRetracted(ctx, doi)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("retraction API lookup failed")
		case retracted:
			signal.Sources = append(signal.Sources, "api")
			strong = true
			if signal.Reason == "" {
				signal.Reason = reason
			}
		}
	}

	if len(signal.Sources) == 0 {
		return signal
	}

	signal.Retracted = true
	if strong || len(signal.Sources) >= 2 {
		signal.Tier = TierHigh
	} else {
		signal.Tier = TierReviewNeeded
	}
	return signal
}

func (c *RetractionChecker) lookupDataset(entry *domain.BibliographyEntry) (retractionRecord, bool) {
	if doi := entryDOI(entry); doi != "" {
		if rec, ok := c.byDOI[doi]; ok {
			return rec, true
		}
	}
	title := entry.Title
	if entry.Resolved != nil && entry.Resolved.Title != "" {
		title = entry.Resolved.Title
	}
	if key := normalizeName(title); key != "" {
		if rec, ok := c.byTitle[key]; ok {
			return rec, true
		}
	}
	return retractionRecord{}, false
}

// entryDOI prefers the resolved record's DOI over the parsed one.
func entryDOI(entry *domain.BibliographyEntry) string {
	if entry.Resolved != nil && entry.Resolved.Identifiers.DOI != "" {
		return strings.ToLower(entry.Resolved.Identifiers.DOI)
	}
	return strings.ToLower(entry.Identifiers.DOI)
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return col
}

func field(row []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
