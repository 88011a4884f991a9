package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/domain"
	"github.com/helixir/citation-integrity-service/internal/metasources"
)

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string) *Client {
	cfg := Config{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		RateLimit:  100, // High rate for testing
		BurstSize:  100,
		MaxResults: 20,
		Enabled:    true,
	}

	httpClient := metasources.NewHTTPClient(metasources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

const sampleFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <totalResults>1</totalResults>
  <entry>
    <id>http://arxiv.org/abs/1706.03762v5</id>
    <title>Attention Is All
     You Need</title>
    <summary>  The dominant sequence transduction models are based on
     complex recurrent networks.  </summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
    <arxiv:primary_category term="cs.CL"/>
    <arxiv:doi>10.5555/3295222</arxiv:doi>
    <arxiv:journal_ref>Advances in Neural Information Processing Systems 30</arxiv:journal_ref>
  </entry>
</feed>`

const preprintFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <totalResults>1</totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.00001v1</id>
    <title>An Unpublished Preprint</title>
    <summary>Never made it to a journal.</summary>
    <published>2023-01-02T00:00:00Z</published>
    <author><name>Ada Lovelace</name></author>
  </entry>
</feed>`

const emptyFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <totalResults>0</totalResults>
</feed>`

func TestClient_LookupByIdentifier(t *testing.T) {
	t.Run("resolves a work by arXiv ID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			assert.Equal(t, "1706.03762", r.URL.Query().Get("id_list"))
			w.Write([]byte(sampleFeedXML))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		work, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			ArXivID: "arXiv:1706.03762",
		})
		require.NoError(t, err)
		require.NotNil(t, work)

		assert.Equal(t, "arxiv", work.Source)
		assert.Equal(t, "1706.03762", work.Identifiers.ArXivID)
		assert.Equal(t, "10.5555/3295222", work.Identifiers.DOI)
		assert.Equal(t, "Attention Is All You Need", work.Title)
		assert.Equal(t, 2017, work.Year)
		assert.Equal(t, "Advances in Neural Information Processing Systems 30", work.Venue)
		assert.Equal(t, "preprint", work.WorkType)
		assert.Contains(t, work.Abstract, "dominant sequence transduction models")
		assert.NotContains(t, work.Abstract, "\n")

		require.Len(t, work.Authors, 2)
		assert.Equal(t, "Ashish Vaswani", work.Authors[0].Name)
		assert.Equal(t, "Noam Shazeer", work.Authors[1].Name)
	})

	t.Run("defaults the venue for unpublished preprints", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(preprintFeedXML))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		work, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			ArXivID: "2301.00001",
		})
		require.NoError(t, err)
		assert.Equal(t, "arXiv", work.Venue)
		assert.Equal(t, "", work.Identifiers.DOI)
	})

	t.Run("returns ErrNoIdentifier without an arXiv ID", func(t *testing.T) {
		client := newTestClient("http://localhost")

		_, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			DOI: "10.5555/3295222",
		})
		assert.ErrorIs(t, err, domain.ErrNoIdentifier)
	})

	t.Run("returns ErrNotFound for an empty feed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(emptyFeedXML))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			ArXivID: "9999.99999",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestClient_Search(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{}
		for key := range r.URL.Query() {
			query[key] = r.URL.Query().Get(key)
		}
		w.Write([]byte(sampleFeedXML))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	works, err := client.Search(context.Background(), metasources.SearchQuery{
		Title:       "Attention Is All You Need",
		FirstAuthor: "Vaswani",
		MaxResults:  5,
	})
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, "1706.03762", works[0].Identifiers.ArXivID)

	assert.Equal(t, `ti:"Attention Is All You Need" AND au:"Vaswani"`, query["search_query"])
	assert.Equal(t, "5", query["max_results"])
	assert.Equal(t, "relevance", query["sortBy"])
	assert.Equal(t, "descending", query["sortOrder"])
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		query metasources.SearchQuery
		want  string
	}{
		{
			name:  "title and author",
			query: metasources.SearchQuery{Title: "Attention", FirstAuthor: "Vaswani"},
			want:  `ti:"Attention" AND au:"Vaswani"`,
		},
		{
			name:  "title only",
			query: metasources.SearchQuery{Title: "Attention"},
			want:  `ti:"Attention"`,
		},
		{
			name:  "empty query",
			query: metasources.SearchQuery{},
			want:  "all:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSearchQuery(tt.query))
		})
	}
}

func TestExtractArXivID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"http://arxiv.org/abs/1706.03762v5", "1706.03762"},
		{"http://arxiv.org/abs/2301.12345", "2301.12345"},
		{"http://arxiv.org/abs/hep-th/9901001v1", "hep-th/9901001"},
		{"https://example.com/not-arxiv", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArXivID(tt.input), tt.input)
	}
}

func TestNormalizeArXivID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"arXiv:1706.03762", "1706.03762"},
		{"arxiv:1706.03762", "1706.03762"},
		{"http://arxiv.org/abs/1706.03762v2", "1706.03762"},
		{" 1706.03762 ", "1706.03762"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeArXivID(tt.input), tt.input)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "one two three", normalizeWhitespace("  one\n  two\tthree "))
	assert.Equal(t, "", normalizeWhitespace("   "))
}
