package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/metasources"
)

const (
	// SourceName is the stable name used for attribution and caching.
	SourceName = "pubmed"

	// DefaultBaseURL is the default E-utilities base URL.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key.
	// NCBI allows 3 req/sec without a key and 10 req/sec with one.
	DefaultRateLimit = 3.0

	// KeyedRateLimit is the rate limit when an API key is configured.
	KeyedRateLimit = 10.0

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search request.
	DefaultMaxResults = 10
)

// Config holds configuration for the PubMed client.
type Config struct {
	// BaseURL is the E-utilities base URL.
	// Defaults to https://eutils.ncbi.nlm.nih.gov/entrez/eutils
	BaseURL string

	// APIKey is the optional NCBI API key. Configuring one raises the
	// allowed request rate from 3 to 10 req/sec.
	APIKey string

	// Email is the contact email sent with each request, per NCBI usage
	// guidelines.
	Email string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 3 req/sec, or 10 req/sec when an API key is set.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to the integer part of RateLimit.
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
		if c.APIKey != "" {
			c.RateLimit = KeyedRateLimit
		} else {
			c.RateLimit = DefaultRateLimit
		}
	}
	if c.BurstSize == 0 {
		c.BurstSize = int(c.RateLimit)
		if c.BurstSize < 1 {
			c.BurstSize = 1
		}
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the metasources.MetadataSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *metasources.HTTPClient
}

// Ensure Client implements the MetadataSource interface.
var _ metasources.MetadataSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := metasources.NewHTTPClient(metasources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Source:    "pubmed",
		Observer:  cfg.Observer,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
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

// LookupByIdentifier retrieves a work by PMID. PMCIDs and DOIs are not
// directly addressable through efetch against the pubmed database, so
// entries carrying only those identifiers fall through to other stages.
func (c *Client) LookupByIdentifier(ctx context.Context, ids domain.WorkIdentifiers) (*domain.ResolvedWork, error) {
	pmid := normalizePMID(ids.PubMedID)
	if pmid == "" {
		return nil, domain.ErrNoIdentifier
	}

	articles, err := c.fetchArticles(ctx, []string{pmid})
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, domain.NewNotFoundError("work", "pmid:"+pmid)
	}

	work := c.articleToResolved(&articles[0])
	if work == nil {
		return nil, domain.NewNotFoundError("work", "pmid:"+pmid)
	}
	return work, nil
}

// Search queries PubMed for candidate works. The search runs in two
// steps: esearch returns matching PMIDs, efetch returns their records.
func (c *Client) Search(ctx context.Context, query metasources.SearchQuery) ([]*domain.ResolvedWork, error) {
	maxResults := query.MaxResults
	if maxResults == 0 {
		maxResults = c.config.MaxResults
	}

	pmids, err := c.searchPMIDs(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		return []*domain.ResolvedWork{}, nil
	}

	articles, err := c.fetchArticles(ctx, pmids)
	if err != nil {
		return nil, err
	}

	works := make([]*domain.ResolvedWork, 0, len(articles))
	for i := range articles {
		if work := c.articleToResolved(&articles[i]); work != nil {
			works = append(works, work)
		}
	}
	return works, nil
}

// searchPMIDs calls esearch.fcgi and returns the matching PMIDs.
func (c *Client) searchPMIDs(ctx context.Context, query metasources.SearchQuery, maxResults int) ([]string, error) {
	searchURL, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	term := buildSearchTerm(query)

	values := url.Values{}
	values.Set("db", "pubmed")
	values.Set("term", term)
	values.Set("retmax", strconv.Itoa(maxResults))
	values.Set("retmode", "xml")
	if query.Year > 0 {
		// Same wide window as the other stages; scoring owns the penalty.
		values.Set("datetype", "pdat")
		values.Set("mindate", strconv.Itoa(query.Year-5))
		values.Set("maxdate", strconv.Itoa(query.Year+5))
	}
	c.addCredentials(values)
	searchURL.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
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

	var result ESearchResult
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding esearch response: %w", err)
	}

	// PhraseNotFound is how esearch reports a query token with no index
	// entry. The remaining terms still searched, so keep any IDs found.
	return result.IDList.IDs, nil
}

// fetchArticles calls efetch.fcgi for the given PMIDs and returns the
// decoded article records.
func (c *Client) fetchArticles(ctx context.Context, pmids []string) ([]PubmedArticle, error) {
	fetchURL, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	values := url.Values{}
	values.Set("db", "pubmed")
	values.Set("id", strings.Join(pmids, ","))
	values.Set("retmode", "xml")
	values.Set("rettype", "abstract")
	c.addCredentials(values)
	fetchURL.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL.String(), nil)
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

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&articleSet); err != nil {
		return nil, fmt.Errorf("decoding efetch response: %w", err)
	}

	return articleSet.Articles, nil
}

// addCredentials attaches the API key and contact email if configured.
func (c *Client) addCredentials(values url.Values) {
	if c.config.APIKey != "" {
		values.Set("api_key", c.config.APIKey)
	}
	if c.config.Email != "" {
		values.Set("email", c.config.Email)
	}
}

// buildSearchTerm assembles an esearch term from the query fields.
// Title words search the title field; the first author searches the
// author index.
func buildSearchTerm(query metasources.SearchQuery) string {
	var parts []string
	title := strings.TrimSpace(query.Title)
	if title != "" {
		parts = append(parts, title+"[Title]")
	}
	author := strings.TrimSpace(query.FirstAuthor)
	if author != "" {
		parts = append(parts, author+"[Author]")
	}
	return strings.Join(parts, " AND ")
}

// articleToResolved converts a PubMed article to a domain ResolvedWork.
func (c *Client) articleToResolved(article *PubmedArticle) *domain.ResolvedWork {
	if article == nil {
		return nil
	}

	pmid := strings.TrimSpace(article.MedlineCitation.PMID.Value)
	if pmid == "" {
		return nil
	}

	ids := domain.WorkIdentifiers{
		PubMedID: pmid,
		DOI:      extractDOI(article),
		PMCID:    extractPMCID(article),
	}

	return &domain.ResolvedWork{
		Source:      SourceName,
		Identifiers: ids,
		Title:       strings.TrimSpace(article.MedlineCitation.Article.ArticleTitle),
		Authors:     extractAuthors(article),
		Year:        extractYear(article),
		Venue:       strings.TrimSpace(article.MedlineCitation.Article.Journal.Title),
		Abstract:    extractAbstract(article),
		WorkType:    extractWorkType(article),
		IsRetracted: isRetracted(article),
		RawMetadata: map[string]interface{}{
			"pmid":    pmid,
			"volume":  article.MedlineCitation.Article.Journal.JournalIssue.Volume,
			"issue":   article.MedlineCitation.Article.Journal.JournalIssue.Issue,
			"journal": article.MedlineCitation.Article.Journal.ISOAbbreviation,
		},
	}
}

// extractDOI finds the DOI from ELocationID or the article ID list.
func extractDOI(article *PubmedArticle) string {
	for _, loc := range article.MedlineCitation.Article.ELocationID {
		if loc.EIdType == "doi" && loc.Valid != "N" {
			return strings.ToLower(strings.TrimSpace(loc.Value))
		}
	}
	for _, id := range article.PubmedData.ArticleIdList.ArticleIds {
		if id.IdType == "doi" {
			return strings.ToLower(strings.TrimSpace(id.Value))
		}
	}
	return ""
}

// extractPMCID finds the PubMed Central identifier, if any.
func extractPMCID(article *PubmedArticle) string {
	for _, id := range article.PubmedData.ArticleIdList.ArticleIds {
		if id.IdType == "pmc" {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

// extractYear returns the publication year, preferring the electronic
// publication date, then the journal issue date, then the MedlineDate
// fallback PubMed uses for irregular issues.
func extractYear(article *PubmedArticle) int {
	for _, d := range article.MedlineCitation.Article.ArticleDate {
		if d.DateType == "" || strings.EqualFold(d.DateType, "Electronic") {
			if year, err := strconv.Atoi(strings.TrimSpace(d.Year)); err == nil {
				return year
			}
		}
	}

	pubDate := article.MedlineCitation.Article.Journal.JournalIssue.PubDate
	if year, err := strconv.Atoi(strings.TrimSpace(pubDate.Year)); err == nil {
		return year
	}

	// MedlineDate looks like "2023 Jan-Feb" or "2022-2023".
	fields := strings.FieldsFunc(pubDate.MedlineDate, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, f := range fields {
		if len(f) == 4 {
			if year, err := strconv.Atoi(f); err == nil {
				return year
			}
		}
	}
	return 0
}

// extractAbstract joins the abstract sections, prefixing labeled sections
// with their label.
func extractAbstract(article *PubmedArticle) string {
	abstract := article.MedlineCitation.Article.Abstract
	if abstract == nil {
		return ""
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, section := range abstract.AbstractTexts {
		text := strings.TrimSpace(section.Value)
		if text == "" {
			continue
		}
		if section.Label != "" {
			parts = append(parts, section.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// extractAuthors converts the author list, skipping entries PubMed has
// flagged as invalid. Collective names are kept as a single author.
func extractAuthors(article *PubmedArticle) []domain.Author {
	list := article.MedlineCitation.Article.AuthorList
	if list == nil {
		return nil
	}

	authors := make([]domain.Author, 0, len(list.Authors))
	for _, a := range list.Authors {
		if a.ValidYN == "N" {
			continue
		}
		var name string
		if a.CollectiveName != "" {
			name = strings.TrimSpace(a.CollectiveName)
		} else {
			name = strings.TrimSpace(strings.TrimSpace(a.ForeName) + " " + strings.TrimSpace(a.LastName))
		}
		if name == "" {
			continue
		}
		authors = append(authors, domain.Author{Name: name})
	}
	return authors
}

// extractWorkType returns the first publication type, lowercased.
func extractWorkType(article *PubmedArticle) string {
	list := article.MedlineCitation.Article.PublicationTypeList
	if list == nil || len(list.PublicationTypes) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(list.PublicationTypes[0].Value))
}

// isRetracted reports whether PubMed has flagged the article as a
// retracted publication.
func isRetracted(article *PubmedArticle) bool {
	list := article.MedlineCitation.Article.PublicationTypeList
	if list == nil {
		return false
	}
	for _, pt := range list.PublicationTypes {
		if strings.EqualFold(strings.TrimSpace(pt.Value), "Retracted Publication") {
			return true
		}
	}
	return false
}

// normalizePMID strips common prefixes from a PMID.
func normalizePMID(pmid string) string {
	pmid = strings.TrimSpace(pmid)
	pmid = strings.TrimPrefix(pmid, "pmid:")
	pmid = strings.TrimPrefix(pmid, "PMID:")
	return strings.TrimSpace(pmid)
}
