package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/metasources"
)

const (
	// SourceName is the stable name used for attribution and caching.
	SourceName = "arxiv"

	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (3 requests per second).
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search request.
	DefaultMaxResults = 10
)

// arxivIDRegex extracts the arXiv ID from the full URL.
// Matches patterns like "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool

	// Observer receives request outcomes for metrics. Optional.
	Observer metasources.RequestObserver
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the metasources.MetadataSource interface for arXiv.
type Client struct {
	config     Config
	httpClient *metasources.HTTPClient
}

// Ensure Client implements the MetadataSource interface.
var _ metasources.MetadataSource = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := metasources.NewHTTPClient(metasources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Source:    "arxiv",
		Observer:  cfg.Observer,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *metasources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the stable source name.
func (c *Client) Name() string {
	return SourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// LookupByIdentifier retrieves a work by arXiv ID via the id_list
// parameter. arXiv cannot look up by DOI or PMID.
func (c *Client) LookupByIdentifier(ctx context.Context, ids domain.WorkIdentifiers) (*domain.ResolvedWork, error) {
	arxivID := normalizeArXivID(ids.ArXivID)
	if arxivID == "" {
		return nil, domain.ErrNoIdentifier
	}

	queryURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	queryURL.Path = strings.TrimRight(queryURL.Path, "/") + "/query"

	values := url.Values{}
	values.Set("id_list", arxivID)
	queryURL.RawQuery = values.Encode()

	feed, err := c.fetchFeed(ctx, queryURL.String())
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 {
		return nil, domain.NewNotFoundError("work", "arxiv:"+arxivID)
	}

	work := c.entryToResolved(&feed.Entries[0])
	if work == nil {
		return nil, domain.NewNotFoundError("work", "arxiv:"+arxivID)
	}
	return work, nil
}

// Search queries arXiv for candidate works. Title words search the
// title field and the first author searches the author field; arXiv
// has no publication-date filter usable for journal years, so year
// discrimination is left to scoring.
func (c *Client) Search(ctx context.Context, query metasources.SearchQuery) ([]*domain.ResolvedWork, error) {
	queryURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	queryURL.Path = strings.TrimRight(queryURL.Path, "/") + "/query"

	maxResults := query.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	values := url.Values{}
	values.Set("search_query", buildSearchQuery(query))
	values.Set("max_results", strconv.Itoa(maxResults))
	values.Set("sortBy", "relevance")
	values.Set("sortOrder", "descending")
	queryURL.RawQuery = values.Encode()

	feed, err := c.fetchFeed(ctx, queryURL.String())
	if err != nil {
		return nil, err
	}

	works := make([]*domain.ResolvedWork, 0, len(feed.Entries))
	for i := range feed.Entries {
		if work := c.entryToResolved(&feed.Entries[i]); work != nil {
			works = append(works, work)
		}
	}
	return works, nil
}

// fetchFeed executes a GET request and decodes the Atom feed response.
func (c *Client) fetchFeed(ctx context.Context, rawURL string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &feed, nil
}

// buildSearchQuery assembles the fielded arXiv search expression.
func buildSearchQuery(query metasources.SearchQuery) string {
	var parts []string
	title := strings.TrimSpace(query.Title)
	if title != "" {
		parts = append(parts, `ti:"`+title+`"`)
	}
	author := strings.TrimSpace(query.FirstAuthor)
	if author != "" {
		parts = append(parts, `au:"`+author+`"`)
	}
	if len(parts) == 0 {
		return "all:" + title
	}
	return strings.Join(parts, " AND ")
}

// entryToResolved converts an arXiv Atom entry to a domain ResolvedWork.
func (c *Client) entryToResolved(entry *Entry) *domain.ResolvedWork {
	if entry == nil {
		return nil
	}

	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return nil
	}

	var year int
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			year = t.Year()
		}
	}

	authors := make([]domain.Author, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		authors = append(authors, domain.Author{
			Name:        name,
			Affiliation: strings.TrimSpace(a.Affiliation),
		})
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	rawMetadata := map[string]interface{}{
		"arxiv_id":   arxivID,
		"categories": categories,
	}
	if entry.JournalRef != "" {
		rawMetadata["journal_ref"] = strings.TrimSpace(entry.JournalRef)
	}
	if entry.Comment != "" {
		rawMetadata["comment"] = strings.TrimSpace(entry.Comment)
	}
	if entry.PrimaryCategory.Term != "" {
		rawMetadata["primary_category"] = entry.PrimaryCategory.Term
	}

	venue := strings.TrimSpace(entry.JournalRef)
	if venue == "" {
		venue = "arXiv"
	}

	return &domain.ResolvedWork{
		Source: SourceName,
		Identifiers: domain.WorkIdentifiers{
			ArXivID: arxivID,
			DOI:     strings.ToLower(strings.TrimSpace(entry.DOI)),
		},
		Title:       normalizeWhitespace(entry.Title),
		Authors:     authors,
		Year:        year,
		Venue:       venue,
		Abstract:    normalizeWhitespace(entry.Summary),
		WorkType:    "preprint",
		RawMetadata: rawMetadata,
	}
}

// extractArXivID extracts the arXiv ID from the full entry URL.
// Input: "http://arxiv.org/abs/2301.12345v1" -> "2301.12345"
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeArXivID strips common prefixes and version suffixes.
func normalizeArXivID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "arXiv:")
	id = strings.TrimPrefix(id, "arxiv:")
	if matches := arxivIDRegex.FindStringSubmatch(id); len(matches) >= 2 {
		id = matches[1]
	}
	return strings.TrimSpace(id)
}

// normalizeWhitespace trims and collapses multiple whitespace characters.
// arXiv titles and abstracts carry embedded newlines and indentation.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	return strings.Join(fields, " ")
}
