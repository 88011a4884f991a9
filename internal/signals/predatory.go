package signals

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"
)

// highListConfidence is the dataset confidence at or above which a
// lone CSV hit is asserted rather than flagged for review.
const highListConfidence = 0.8

// fuzzyNameSimilarity is the minimum normalized-name similarity for
// the fuzzy tier. Fuzzy hits are always review-needed.
const fuzzyNameSimilarity = 0.90

// PredatoryAPI looks a venue or publisher up against a watchlist
// service.
type PredatoryAPI interface {
	// IsPredatory reports whether the named venue or publisher is
	// listed, with the service's own confidence in [0,1].
	IsPredatory(ctx context.Context, name string) (listed bool, confidence float64, err error)
}

// PredatorySignal is the graded outcome of a predatory-venue check.
type PredatorySignal struct {
	Predatory bool
	Tier      Tier

	// Sources names every agreeing evidence source ("list",
	// "list_fuzzy", "api").
	Sources []string

	// MatchedName is the watchlist name that matched, useful when the
	// match was fuzzy.
	MatchedName string
}

// PredatoryEntry is one row of the predatory-venue dataset.
type PredatoryEntry struct {
	Name       string
	Confidence float64
}

type predatoryRecord struct {
	name       string
	normalized string
	confidence float64
}

// PredatoryChecker combines the curated CSV list with an optional API
// lookup. Exact normalized matches use the row's confidence; fuzzy
// matches are a separate always-review tier.
type PredatoryChecker struct {
	records []predatoryRecord
	exact   map[string]predatoryRecord
	api     PredatoryAPI
	logger  zerolog.Logger
}

// PredatoryOption configures a PredatoryChecker.
type PredatoryOption func(*PredatoryChecker)

// WithPredatoryAPI enables the API lookup tier.
func WithPredatoryAPI(api PredatoryAPI) PredatoryOption {
	return func(c *PredatoryChecker) { c.api = api }
}

// WithPredatoryLogger sets the checker's logger.
func WithPredatoryLogger(logger zerolog.Logger) PredatoryOption {
	return func(c *PredatoryChecker) { c.logger = logger }
}

// NewPredatoryChecker creates a checker over an already loaded list.
func NewPredatoryChecker(dataset []PredatoryEntry, opts ...PredatoryOption) *PredatoryChecker {
	c := &PredatoryChecker{
		exact:  make(map[string]predatoryRecord, len(dataset)),
		logger: zerolog.Nop(),
	}
	for _, e := range dataset {
		rec := predatoryRecord{name: e.Name, normalized: normalizeName(e.Name), confidence: e.Confidence}
		if rec.normalized == "" {
			continue
		}
		c.records = append(c.records, rec)
		c.exact[rec.normalized] = rec
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadPredatoryDataset reads a CSV with a header row of name and
// optional confidence columns. Rows without a confidence default to
// 1.0.
func LoadPredatoryDataset(path string) ([]PredatoryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening predatory dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading predatory dataset header: %w", err)
	}
	col := columnIndex(header)

	var entries []PredatoryEntry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading predatory dataset row: %w", err)
		}
		entry := PredatoryEntry{Name: field(row, col, "name"), Confidence: 1.0}
		if raw := field(row, col, "confidence"); raw != "" {
			conf, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing confidence %q: %w", raw, err)
			}
			entry.Confidence = conf
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Check grades the predatory evidence for a venue or publisher name.
// High confidence requires two agreeing sources or a single list hit
// at confidence >= 0.8; fuzzy list matches always stay review-needed
// on their own.
func (c *PredatoryChecker) Check(ctx context.Context, venue string) PredatorySignal {
	var signal PredatorySignal
	key := normalizeName(venue)
	if key == "" {
		return signal
	}

	strong := false
	if rec, ok := c.exact[key]; ok {
		signal.Sources = append(signal.Sources, "list")
		signal.MatchedName = rec.name
		if rec.confidence >= highListConfidence {
			strong = true
		}
	} else if rec, ok := c.fuzzyMatch(key); ok {
		signal.Sources = append(signal.Sources, "list_fuzzy")
		signal.MatchedName = rec.name
	}

	if c.api != nil {
		listed, confidence, err := c.api.IsPredatory(ctx, venue)
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("venue", venue).Msg("predatory API lookup failed")
		case listed && confidence >= highListConfidence:
			signal.Sources = append(signal.Sources, "api")
			strong = true
		case listed:
			signal.Sources = append(signal.Sources, "api")
		}
	}

	if len(signal.Sources) == 0 {
		return signal
	}

	signal.Predatory = true
	if len(signal.Sources) >= 2 || strong {
		signal.Tier = TierHigh
	} else {
		signal.Tier = TierReviewNeeded
	}
	return signal
}

// fuzzyMatch finds the closest list name within the similarity bound.
func (c *PredatoryChecker) fuzzyMatch(key string) (predatoryRecord, bool) {
	best := predatoryRecord{}
	bestSim := 0.0
	for _, rec := range c.records {
		sim := nameSimilarity(key, rec.normalized)
		if sim > bestSim {
			best = rec
			bestSim = sim
		}
	}
	if bestSim >= fuzzyNameSimilarity {
		return best, true
	}
	return predatoryRecord{}, false
}

func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	sim := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longer)
	if sim < 0 {
		return 0
	}
	return sim
}
