package crossref

import (
	"context"
	"encoding/json"
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
		Email:      "test@example.com",
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

// sampleWork returns a fully populated Crossref work record.
func sampleWork() Work {
	return Work{
		DOI:            "10.1056/NEJMoa2034577",
		Type:           "journal-article",
		Title:          []string{"Safety and Efficacy of the BNT162b2 Vaccine"},
		ContainerTitle: []string{"New England Journal of Medicine"},
		Author: []Author{
			{Given: "Fernando", Family: "Polack"},
			{Name: "C4591001 Clinical Trial Group"},
		},
		Issued:    DateParts{DateParts: [][]int{{2020, 12, 31}}},
		Publisher: "Massachusetts Medical Society",
		Volume:    "383",
		Issue:     "27",
		Page:      "2603-2615",
		Abstract:  `<jats:p>Background: A vaccine was <jats:italic>tested</jats:italic>.</jats:p>`,
	}
}

func TestClient_LookupByIdentifier(t *testing.T) {
	t.Run("resolves a work by DOI", func(t *testing.T) {
		var requestedPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestedPath = r.URL.Path
			assert.Equal(t, "test@example.com", r.URL.Query().Get("mailto"))

			resp := Response{Status: "ok", Message: Message{Work: sampleWork()}}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		work, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			DOI: "https://doi.org/10.1056/NEJMOA2034577",
		})
		require.NoError(t, err)
		require.NotNil(t, work)

		assert.Equal(t, "/works/10.1056/nejmoa2034577", requestedPath)

		assert.Equal(t, "crossref", work.Source)
		assert.Equal(t, "10.1056/nejmoa2034577", work.Identifiers.DOI)
		assert.Equal(t, "Safety and Efficacy of the BNT162b2 Vaccine", work.Title)
		assert.Equal(t, "New England Journal of Medicine", work.Venue)
		assert.Equal(t, 2020, work.Year)
		assert.Equal(t, "journal-article", work.WorkType)
		assert.Equal(t, "Background: A vaccine was tested .", work.Abstract)
		assert.False(t, work.IsRetracted)

		require.Len(t, work.Authors, 2)
		assert.Equal(t, "Fernando Polack", work.Authors[0].Name)
		assert.Equal(t, "C4591001 Clinical Trial Group", work.Authors[1].Name)
	})

	t.Run("flags retraction from the relation map", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			work := sampleWork()
			work.Relation = map[string][]Relation{
				"is-retracted-by": {{IDType: "doi", ID: "10.1000/retraction"}},
			}
			resp := Response{Status: "ok", Message: Message{Work: work}}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		work, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			DOI: "10.1056/nejmoa2034577",
		})
		require.NoError(t, err)
		assert.True(t, work.IsRetracted)
	})

	t.Run("returns ErrNoIdentifier without a DOI", func(t *testing.T) {
		client := newTestClient("http://localhost")

		_, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			PubMedID: "24906146",
		})
		assert.ErrorIs(t, err, domain.ErrNoIdentifier)
	})

	t.Run("returns ErrNotFound on 404", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			DOI: "10.1000/missing",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("sends bibliographic query parameters", func(t *testing.T) {
		var query map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = map[string]string{}
			for key := range r.URL.Query() {
				query[key] = r.URL.Query().Get(key)
			}
			resp := Response{
				Status:  "ok",
				Message: Message{Items: []Work{sampleWork()}, TotalResults: 1},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		works, err := client.Search(context.Background(), metasources.SearchQuery{
			Title:       "Safety and Efficacy of the BNT162b2 Vaccine",
			FirstAuthor: "Polack",
			Year:        2020,
			MaxResults:  5,
		})
		require.NoError(t, err)
		require.Len(t, works, 1)
		assert.Equal(t, "10.1056/nejmoa2034577", works[0].Identifiers.DOI)

		assert.Equal(t, "Safety and Efficacy of the BNT162b2 Vaccine", query["query.bibliographic"])
		assert.Equal(t, "Polack", query["query.author"])
		assert.Equal(t, "5", query["rows"])
		assert.Equal(t, "test@example.com", query["mailto"])
		assert.Equal(t, "from-pub-date:2015-01-01,until-pub-date:2025-12-31", query["filter"])
	})

	t.Run("skips items without a DOI", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := Response{
				Status: "ok",
				Message: Message{Items: []Work{
					{Title: []string{"No DOI here"}},
					sampleWork(),
				}},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		works, err := client.Search(context.Background(), metasources.SearchQuery{Title: "anything"})
		require.NoError(t, err)
		require.Len(t, works, 1)
	})
}

func TestDateParts_Year(t *testing.T) {
	assert.Equal(t, 2020, DateParts{DateParts: [][]int{{2020, 12, 31}}}.Year())
	assert.Equal(t, 2021, DateParts{DateParts: [][]int{{2021}}}.Year())
	assert.Equal(t, 0, DateParts{}.Year())
	assert.Equal(t, 0, DateParts{DateParts: [][]int{{}}}.Year())
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://doi.org/10.1056/NEJMoa2034577", "10.1056/nejmoa2034577"},
		{"doi:10.1056/nejmoa2034577", "10.1056/nejmoa2034577"},
		{" 10.1056/NEJMOA2034577 ", "10.1056/nejmoa2034577"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDOI(tt.input), tt.input)
	}
}

func TestStripJATS(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "removes jats tags",
			input: `<jats:p>Background: tested.</jats:p>`,
			want:  "Background: tested.",
		},
		{
			name:  "removes plain html tags",
			input: `<p>A <b>bold</b> claim</p>`,
			want:  "A bold claim",
		},
		{
			name:  "empty abstract",
			input: "",
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripJATS(tt.input))
		})
	}
}
