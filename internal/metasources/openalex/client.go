package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/metasources"
)

const (
	// SourceName is the stable name used for attribution and caching.
	SourceName = "openalex"

	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// OpenAlex polite pool (with email) allows higher rates.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search request.
	DefaultMaxResults = 10

	// doiPrefix is the URL prefix that OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	// Defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// Providing an email grants access to higher rate limits.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec (polite pool with email gets higher).
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	// Defaults to 10, maximum is 200 per OpenAlex API.
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

// Client implements the metasources.MetadataSource interface for OpenAlex.
// It also implements metasources.CitationEnumerator, making it the graph
// provider for deep analysis.
type Client struct {
	config     Config
	httpClient *metasources.HTTPClient
}

// Ensure Client implements the source interfaces.
var (
	_ metasources.MetadataSource     = (*Client)(nil)
	_ metasources.CitationEnumerator = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := metasources.NewHTTPClient(metasources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "Helixir-CitationIntegrity/1.0 (mailto:" + cfg.Email + ")",
		Source:    "openalex",
		Observer:  cfg.Observer,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
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

// LookupByIdentifier retrieves a work by DOI, PMID, or OpenAlex ID.
// OpenAlex accepts all three natively in the works path.
func (c *Client) LookupByIdentifier(ctx context.Context, ids domain.WorkIdentifiers) (*domain.ResolvedWork, error) {
	var workID string
	switch {
	case strings.TrimSpace(ids.DOI) != "":
		workID = doiPrefix + normalizeDOI(ids.DOI)
	case strings.TrimSpace(ids.OpenAlexID) != "":
		workID = normalizeOpenAlexID(ids.OpenAlexID)
	case strings.TrimSpace(ids.PubMedID) != "":
		workID = "pmid:" + strings.TrimSpace(ids.PubMedID)
	default:
		return nil, domain.ErrNoIdentifier
	}

	return c.getWork(ctx, workID)
}

// Search queries OpenAlex for candidate works matching the query.
func (c *Client) Search(ctx context.Context, query metasources.SearchQuery) ([]*domain.ResolvedWork, error) {
	searchURL, err := c.buildSearchURL(query)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
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

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	works := make([]*domain.ResolvedWork, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		if work := c.workToResolved(&searchResp.Results[i]); work != nil {
			works = append(works, work)
		}
	}
	return works, nil
}

// CitedWorks returns the works the given work cites. OpenAlex exposes the
// referenced-work ID list on the work record; the records themselves are
// fetched in one batched filter request.
func (c *Client) CitedWorks(ctx context.Context, id string, limit int) ([]*domain.ResolvedWork, error) {
	work, err := c.getWork(ctx, normalizeOpenAlexID(id))
	if err != nil {
		return nil, err
	}

	refs := work.Cites
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	if len(refs) == 0 {
		return nil, nil
	}

	return c.getWorksBatch(ctx, refs)
}

// CitingWorks returns works citing the given work, most recent first.
func (c *Client) CitingWorks(ctx context.Context, id string, limit int) ([]*domain.ResolvedWork, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	if limit <= 0 || limit > 200 {
		limit = 200 // OpenAlex API limit
	}

	query := url.Values{}
	query.Set("filter", "cites:"+normalizeOpenAlexID(id))
	query.Set("sort", "publication_date:desc")
	query.Set("per_page", strconv.Itoa(limit))
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	baseURL.RawQuery = query.Encode()

	return c.listWorks(ctx, baseURL.String())
}

// getWork fetches a single work by path identifier.
func (c *Client) getWork(ctx context.Context, workID string) (*domain.ResolvedWork, error) {
	fetchURL, err := c.buildGetByIDURL(workID)
	if err != nil {
		return nil, fmt.Errorf("building fetch URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("work", workID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var work Work
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&work); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	resolved := c.workToResolved(&work)
	if resolved == nil {
		return nil, domain.NewNotFoundError("work", workID)
	}
	return resolved, nil
}

// getWorksBatch fetches up to 50 works per request using the openalex_id filter.
func (c *Client) getWorksBatch(ctx context.Context, ids []string) ([]*domain.ResolvedWork, error) {
	const batchSize = 50

	var out []*domain.ResolvedWork
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		short := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			short = append(short, normalizeOpenAlexID(id))
		}

		baseURL, err := url.Parse(c.config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
		baseURL.Path = "/works"

		query := url.Values{}
		query.Set("filter", "openalex_id:"+strings.Join(short, "|"))
		query.Set("per_page", strconv.Itoa(batchSize))
		if c.config.Email != "" {
			query.Set("mailto", c.config.Email)
		}
		baseURL.RawQuery = query.Encode()

		works, err := c.listWorks(ctx, baseURL.String())
		if err != nil {
			return nil, err
		}
		out = append(out, works...)
	}
	return out, nil
}

// listWorks executes a prepared works-list URL and converts the results.
func (c *Client) listWorks(ctx context.Context, listURL string) ([]*domain.ResolvedWork, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
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

	var listResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&listResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	works := make([]*domain.ResolvedWork, 0, len(listResp.Results))
	for i := range listResp.Results {
		if work := c.workToResolved(&listResp.Results[i]); work != nil {
			works = append(works, work)
		}
	}
	return works, nil
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(query metasources.SearchQuery) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	values := url.Values{}

	search := strings.TrimSpace(query.Title)
	if query.FirstAuthor != "" {
		search = strings.TrimSpace(search + " " + query.FirstAuthor)
	}
	if search != "" {
		values.Set("search", search)
	}

	// A wide year window keeps preprint-to-published gaps inside the
	// candidate set; the resolver's scoring handles the gap penalty.
	if query.Year > 0 {
		from := strconv.Itoa(query.Year-5) + "-01-01"
		to := strconv.Itoa(query.Year+5) + "-12-31"
		values.Set("filter", "from_publication_date:"+from+",to_publication_date:"+to)
	}

	maxResults := query.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > 200 {
		maxResults = 200 // OpenAlex API limit
	}
	values.Set("per_page", strconv.Itoa(maxResults))

	// Add mailto for polite pool
	if c.config.Email != "" {
		values.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = values.Encode()
	return baseURL.String(), nil
}

// buildGetByIDURL constructs the URL for fetching a work by ID.
func (c *Client) buildGetByIDURL(id string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	// Determine the ID format and construct the path
	// OpenAlex accepts: OpenAlex ID, DOI, MAG ID, PubMed ID, PMC ID
	var workID string
	switch {
	case strings.HasPrefix(id, openAlexIDPrefix):
		// Full OpenAlex URL - extract the ID part
		workID = strings.TrimPrefix(id, openAlexIDPrefix)
	case strings.HasPrefix(id, "W"):
		// Short OpenAlex ID (e.g., W2741809807)
		workID = id
	case strings.HasPrefix(id, doiPrefix):
		// Full DOI URL
		workID = id
	case strings.HasPrefix(id, "10."):
		// Short DOI format - prefix with https://doi.org/
		workID = doiPrefix + id
	case strings.HasPrefix(id, "doi:"):
		// Canonical DOI format from our system
		workID = doiPrefix + strings.TrimPrefix(id, "doi:")
	default:
		// Assume it is an OpenAlex ID or other supported format
		workID = id
	}

	// Use direct path concatenation - OpenAlex expects the DOI as-is in the path
	// and handles URL decoding on their side
	baseURL.Path = "/works/" + workID

	// Add mailto for polite pool
	if c.config.Email != "" {
		query := url.Values{}
		query.Set("mailto", c.config.Email)
		baseURL.RawQuery = query.Encode()
	}

	return baseURL.String(), nil
}

// workToResolved converts an OpenAlex Work to a domain ResolvedWork.
func (c *Client) workToResolved(work *Work) *domain.ResolvedWork {
	if work == nil {
		return nil
	}

	// Extract and normalize DOI
	doi := normalizeDOI(work.DOI)
	if doi == "" && work.IDs.DOI != "" {
		doi = normalizeDOI(work.IDs.DOI)
	}

	// Extract OpenAlex ID
	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" && work.IDs.OpenAlex != "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	ids := domain.WorkIdentifiers{
		DOI:        doi,
		PubMedID:   normalizePMID(work.IDs.PMID),
		PMCID:      work.IDs.PMCID,
		OpenAlexID: openAlexID,
	}

	// Skip works without any identifier
	if domain.GenerateCanonicalID(ids) == "" {
		return nil
	}

	// Extract authors
	authors := make([]domain.Author, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		author := domain.Author{
			Name:  authorship.Author.DisplayName,
			ORCID: normalizeORCID(authorship.Author.Orcid),
		}
		// Get affiliation from first institution
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		authors = append(authors, author)
	}

	// Get title - prefer display_name as it is usually cleaner
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	// Get venue from primary location
	var venue string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}

	// Normalize referenced-work IDs for graph expansion
	cites := make([]string, 0, len(work.ReferencedWorks))
	for _, ref := range work.ReferencedWorks {
		if short := normalizeOpenAlexID(ref); short != "" {
			cites = append(cites, short)
		}
	}

	// Reconstruct abstract from inverted index
	abstract := reconstructAbstract(work.AbstractInvertedIndex)

	return &domain.ResolvedWork{
		Source:      SourceName,
		Identifiers: ids,
		Title:       title,
		Authors:     authors,
		Year:        work.PublicationYear,
		Venue:       venue,
		Abstract:    abstract,
		WorkType:    work.Type,
		IsRetracted: work.IsRetracted,
		Cites:       cites,
		RawMetadata: map[string]interface{}{
			"openalex_id":    openAlexID,
			"doi":            doi,
			"type":           work.Type,
			"pmid":           work.IDs.PMID,
			"pmcid":          work.IDs.PMCID,
			"cited_by_count": work.CitedByCount,
		},
	}
}

// normalizeDOI strips the https://doi.org/ prefix from DOIs and returns lowercase.
func normalizeDOI(doi string) string {
	if doi == "" {
		return ""
	}
	// Trim whitespace first
	doi = strings.TrimSpace(doi)
	// Strip the URL prefix if present
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	if id == "" {
		return ""
	}
	// Strip the URL prefix if present
	id = strings.TrimPrefix(id, openAlexIDPrefix)
	return strings.TrimSpace(id)
}

// normalizePMID strips any URL prefixes from PubMed IDs.
func normalizePMID(pmid string) string {
	if pmid == "" {
		return ""
	}
	pmid = strings.TrimPrefix(pmid, "https://pubmed.ncbi.nlm.nih.gov/")
	return strings.TrimSpace(pmid)
}

// normalizeORCID strips any URL prefixes from ORCID identifiers.
func normalizeORCID(orcid string) string {
	if orcid == "" {
		return ""
	}
	orcid = strings.TrimPrefix(orcid, "https://orcid.org/")
	return strings.TrimSpace(orcid)
}

// reconstructAbstract reconstructs the abstract text from OpenAlex's inverted index format.
// OpenAlex stores abstracts as inverted indices mapping words to their positions.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	// Build a slice of (position, word) pairs.
	// Pre-calculate total capacity by summing all position slice lengths.
	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	// Sort by position
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	// Reconstruct the text with pre-sized builder to reduce allocations.
	// Estimate average word length of 6 characters plus a space separator.
	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
