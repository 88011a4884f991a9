package crossref

import (
	"context"
	"encoding/json"
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
	SourceName = "crossref"

	// DefaultBaseURL is the default Crossref API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	// Crossref's polite pool (with mailto) tolerates up to ~50 req/sec;
	// stay well under it.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search request.
	DefaultMaxResults = 10
)

// jatsTag matches the JATS XML markup Crossref embeds in abstracts.
var jatsTag = regexp.MustCompile(`</?jats:[^>]+>|</?[a-zA-Z][^>]*>`)

// Config holds configuration for the Crossref client.
type Config struct {
	// BaseURL is the Crossref API base URL.
	// Defaults to https://api.crossref.org
	BaseURL string

	// Email is the contact email for the polite pool.
	Email string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	// Defaults to 10.
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

// Client implements the metasources.MetadataSource interface for Crossref.
type Client struct {
	config     Config
	httpClient *metasources.HTTPClient
}

// Ensure Client implements the MetadataSource interface.
var _ metasources.MetadataSource = (*Client)(nil)

// New creates a new Crossref client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := metasources.NewHTTPClient(metasources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "Helixir-CitationIntegrity/1.0 (mailto:" + cfg.Email + ")",
		Source:    "crossref",
		Observer:  cfg.Observer,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Crossref client with a custom HTTP client.
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

// LookupByIdentifier retrieves a work by DOI. Crossref recognizes no other
// identifier type.
func (c *Client) LookupByIdentifier(ctx context.Context, ids domain.WorkIdentifiers) (*domain.ResolvedWork, error) {
	doi := normalizeDOI(ids.DOI)
	if doi == "" {
		return nil, domain.ErrNoIdentifier
	}

	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works/" + doi
	c.addMailto(baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("work", doi)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(SourceName, resp.StatusCode, string(body), nil)
	}

	var envelope Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	work := c.workToResolved(&envelope.Message.Work)
	if work == nil {
		return nil, domain.NewNotFoundError("work", doi)
	}
	return work, nil
}

// Search queries Crossref's bibliographic search for candidate works.
func (c *Client) Search(ctx context.Context, query metasources.SearchQuery) ([]*domain.ResolvedWork, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/works"

	maxResults := query.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	values := url.Values{}
	values.Set("query.bibliographic", query.Title)
	if query.FirstAuthor != "" {
		values.Set("query.author", query.FirstAuthor)
	}
	if query.Year > 0 {
		// Same wide window as the other stages; scoring owns the penalty.
		values.Set("filter", fmt.Sprintf("from-pub-date:%d-01-01,until-pub-date:%d-12-31", query.Year-5, query.Year+5))
	}
	values.Set("rows", strconv.Itoa(maxResults))
	if c.config.Email != "" {
		values.Set("mailto", c.config.Email)
	}
	baseURL.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
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

	var envelope Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	works := make([]*domain.ResolvedWork, 0, len(envelope.Message.Items))
	for i := range envelope.Message.Items {
		if work := c.workToResolved(&envelope.Message.Items[i]); work != nil {
			works = append(works, work)
		}
	}
	return works, nil
}

// addMailto attaches the polite-pool mailto parameter if configured.
func (c *Client) addMailto(u *url.URL) {
	if c.config.Email == "" {
		return
	}
	values := u.Query()
	values.Set("mailto", c.config.Email)
	u.RawQuery = values.Encode()
}

// workToResolved converts a Crossref work to a domain ResolvedWork.
func (c *Client) workToResolved(work *Work) *domain.ResolvedWork {
	if work == nil {
		return nil
	}

	doi := normalizeDOI(work.DOI)
	if doi == "" {
		return nil
	}

	var title string
	if len(work.Title) > 0 {
		title = strings.TrimSpace(work.Title[0])
	}

	var venue string
	if len(work.ContainerTitle) > 0 {
		venue = strings.TrimSpace(work.ContainerTitle[0])
	}
	if venue == "" {
		venue = work.Publisher
	}

	authors := make([]domain.Author, 0, len(work.Author))
	for _, a := range work.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name == "" {
			continue
		}
		authors = append(authors, domain.Author{Name: name})
	}

	// Crossref marks retractions through update relations.
	_, isRetracted := work.Relation["is-retracted-by"]

	return &domain.ResolvedWork{
		Source:      SourceName,
		Identifiers: domain.WorkIdentifiers{DOI: doi},
		Title:       title,
		Authors:     authors,
		Year:        work.Issued.Year(),
		Venue:       venue,
		Abstract:    stripJATS(work.Abstract),
		WorkType:    work.Type,
		IsRetracted: isRetracted,
		RawMetadata: map[string]interface{}{
			"doi":       doi,
			"type":      work.Type,
			"publisher": work.Publisher,
			"issn":      work.ISSN,
			"volume":    work.Volume,
			"issue":     work.Issue,
			"page":      work.Page,
		},
	}
}

// normalizeDOI strips URL wrappers and lowercases a DOI.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// stripJATS removes the JATS XML markup Crossref embeds in abstracts.
func stripJATS(abstract string) string {
	if abstract == "" {
		return ""
	}
	cleaned := jatsTag.ReplaceAllString(abstract, " ")
	return strings.Join(strings.Fields(cleaned), " ")
}
