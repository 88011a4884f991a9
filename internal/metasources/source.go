// Package metasources provides interfaces and types for bibliographic
// metadata source clients.
//
// This package defines the foundational abstractions that all metadata
// source implementations must follow. Each provider (OpenAlex, Crossref,
// PubMed, arXiv) implements the MetadataSource interface, allowing the
// resolver to walk a fixed fallback chain with a unified API.
//
// Example usage:
//
//	source := openalex.New(cfg, httpClient)
//	query := metasources.SearchQuery{
//		Title:       "Attention is all you need",
//		FirstAuthor: "vaswani",
//		Year:        2017,
//	}
//	works, err := source.Search(ctx, query)
package metasources

import (
	"context"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

// SearchQuery defines the parameters for a structured metadata search.
// Title is required; the other fields narrow the candidate set.
type SearchQuery struct {
	// Title is the best-effort title of the referenced work (required).
	Title string

	// FirstAuthor is the normalized first-author surname token. Sources
	// that support author filtering include it in the query; others use
	// it only for client-side narrowing.
	FirstAuthor string

	// Year is the publication year to center the search window on.
	// A value of 0 applies no year filter.
	Year int

	// MaxResults limits the number of candidates returned.
	// A value of 0 uses the source's default limit.
	MaxResults int
}

// MetadataSource defines the interface that all metadata source clients
// must implement. Each stage of the resolver chain is one MetadataSource.
type MetadataSource interface {
	// LookupByIdentifier retrieves a work by whichever strong identifier
	// this source recognizes (DOI, PMID, arXiv ID, ...). Identifiers the
	// source does not recognize are ignored.
	//
	// Returns domain.ErrNoIdentifier if the entry carries no identifier
	// this source can look up, and domain.ErrNotFound if the lookup ran
	// but matched nothing.
	LookupByIdentifier(ctx context.Context, ids domain.WorkIdentifiers) (*domain.ResolvedWork, error)

	// Search queries the source for candidate works matching the query.
	// Candidates are returned in the source's own ranking order; scoring
	// and acceptance are the resolver's concern.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Apply rate limiting as needed
	//   - Transform source-specific responses to domain.ResolvedWork
	//   - Include appropriate error wrapping with source context
	Search(ctx context.Context, query SearchQuery) ([]*domain.ResolvedWork, error)

	// Name returns the stable source name used for attribution, caching,
	// metrics, and the resolver's provenance trail.
	Name() string

	// IsEnabled returns whether this source is currently enabled and
	// available. A source may be disabled due to configuration, missing
	// API keys, or temporary outages. The resolver skips disabled stages.
	IsEnabled() bool
}

// CitationEnumerator is implemented by sources that can enumerate citation
// relationships. Deep analysis requires at least one enumerating source;
// without one, graph expansion is skipped.
type CitationEnumerator interface {
	// CitedWorks returns the works a given work cites ("references out").
	CitedWorks(ctx context.Context, id string, limit int) ([]*domain.ResolvedWork, error)

	// CitingWorks returns works citing the given work, most recent first.
	CitingWorks(ctx context.Context, id string, limit int) ([]*domain.ResolvedWork, error)
}
