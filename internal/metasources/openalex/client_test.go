package openalex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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
		MaxResults: 25,
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

// sampleWork returns a fully populated OpenAlex work record.
func sampleWork() Work {
	return Work{
		ID:              "https://openalex.org/W2741809807",
		DOI:             "https://doi.org/10.1038/NATURE12373",
		Title:           "CRISPR-Cas Systems",
		DisplayName:     "CRISPR-Cas Systems for Editing Genomes",
		PublicationYear: 2014,
		Type:            "article",
		CitedByCount:    5000,
		Authorships: []Authorship{
			{
				AuthorPosition: "first",
				Author: AuthorInfo{
					ID:          "https://openalex.org/A1234567890",
					DisplayName: "John Smith",
					Orcid:       "https://orcid.org/0000-0001-2345-6789",
				},
				Institutions: []Institution{
					{ID: "https://openalex.org/I123", DisplayName: "MIT"},
				},
			},
			{
				AuthorPosition: "last",
				Author: AuthorInfo{
					ID:          "https://openalex.org/A9876543210",
					DisplayName: "Jane Doe",
				},
			},
		},
		PrimaryLocation: &Location{
			Source: &Source{
				ID:          "https://openalex.org/S123",
				DisplayName: "Nature Biotechnology",
				Type:        "journal",
			},
		},
		IDs: IDs{
			OpenAlex: "https://openalex.org/W2741809807",
			DOI:      "https://doi.org/10.1038/NATURE12373",
			PMID:     "https://pubmed.ncbi.nlm.nih.gov/24906146",
			PMCID:    "PMC4022601",
		},
		ReferencedWorks: []string{
			"https://openalex.org/W1234",
			"https://openalex.org/W5678",
		},
		AbstractInvertedIndex: map[string][]int{
			"CRISPR":   {0},
			"edits":    {1},
			"genomes.": {2},
		},
	}
}

func TestClient_Name(t *testing.T) {
	client := newTestClient("http://localhost")
	assert.Equal(t, "openalex", client.Name())
}

func TestClient_LookupByIdentifier(t *testing.T) {
	t.Run("resolves a work by DOI", func(t *testing.T) {
		var requestedPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestedPath = r.URL.Path
			require.NoError(t, json.NewEncoder(w).Encode(sampleWork()))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		work, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			DOI: "https://doi.org/10.1038/NATURE12373",
		})
		require.NoError(t, err)
		require.NotNil(t, work)

		assert.True(t, strings.HasPrefix(requestedPath, "/works/"))
		assert.Contains(t, requestedPath, "10.1038/nature12373")

		assert.Equal(t, "openalex", work.Source)
		assert.Equal(t, "10.1038/nature12373", work.Identifiers.DOI)
		assert.Equal(t, "W2741809807", work.Identifiers.OpenAlexID)
		assert.Equal(t, "24906146", work.Identifiers.PubMedID)
		assert.Equal(t, "PMC4022601", work.Identifiers.PMCID)
		assert.Equal(t, "CRISPR-Cas Systems for Editing Genomes", work.Title)
		assert.Equal(t, 2014, work.Year)
		assert.Equal(t, "Nature Biotechnology", work.Venue)
		assert.Equal(t, "article", work.WorkType)
		assert.Equal(t, "CRISPR edits genomes.", work.Abstract)
		assert.Equal(t, []string{"W1234", "W5678"}, work.Cites)

		require.Len(t, work.Authors, 2)
		assert.Equal(t, "John Smith", work.Authors[0].Name)
		assert.Equal(t, "0000-0001-2345-6789", work.Authors[0].ORCID)
		assert.Equal(t, "MIT", work.Authors[0].Affiliation)
		assert.Equal(t, "Jane Doe", work.Authors[1].Name)
	})

	t.Run("resolves by PMID when no DOI is present", func(t *testing.T) {
		var requestedPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestedPath = r.URL.Path
			require.NoError(t, json.NewEncoder(w).Encode(sampleWork()))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		_, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			PubMedID: "24906146",
		})
		require.NoError(t, err)
		assert.Equal(t, "/works/pmid:24906146", requestedPath)
	})

	t.Run("returns ErrNoIdentifier without a usable identifier", func(t *testing.T) {
		client := newTestClient("http://localhost")

		_, err := client.LookupByIdentifier(context.Background(), domain.WorkIdentifiers{
			ISBN: "978-0-00-000000-0",
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
	t.Run("sends search parameters and converts results", func(t *testing.T) {
		var query map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = map[string]string{}
			for key := range r.URL.Query() {
				query[key] = r.URL.Query().Get(key)
			}
			resp := SearchResponse{
				Meta:    Meta{Count: 1},
				Results: []Work{sampleWork()},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		works, err := client.Search(context.Background(), metasources.SearchQuery{
			Title:       "CRISPR-Cas Systems",
			FirstAuthor: "Smith",
			Year:        2014,
			MaxResults:  5,
		})
		require.NoError(t, err)
		require.Len(t, works, 1)
		assert.Equal(t, "10.1038/nature12373", works[0].Identifiers.DOI)

		assert.Equal(t, "CRISPR-Cas Systems Smith", query["search"])
		assert.Equal(t, "5", query["per_page"])
		assert.Equal(t, "test@example.com", query["mailto"])
		assert.Equal(t, "from_publication_date:2009-01-01,to_publication_date:2019-12-31", query["filter"])
	})

	t.Run("skips results without any identifier", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := SearchResponse{
				Results: []Work{
					{DisplayName: "No identifiers at all"},
					sampleWork(),
				},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer server.Close()

		client := newTestClient(server.URL)

		works, err := client.Search(context.Background(), metasources.SearchQuery{Title: "anything"})
		require.NoError(t, err)
		require.Len(t, works, 1)
		assert.Equal(t, "W2741809807", works[0].Identifiers.OpenAlexID)
	})
}

func TestClient_CitedWorks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/works/") {
			require.NoError(t, json.NewEncoder(w).Encode(sampleWork()))
			return
		}

		// Batch fetch of the referenced works.
		assert.Contains(t, r.URL.Query().Get("filter"), "openalex_id:W1234")
		ref := sampleWork()
		ref.ID = "https://openalex.org/W1234"
		ref.IDs = IDs{OpenAlex: "https://openalex.org/W1234"}
		ref.DOI = ""
		resp := SearchResponse{Results: []Work{ref}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	works, err := client.CitedWorks(context.Background(), "W2741809807", 1)
	require.NoError(t, err)
	require.Len(t, works, 1)
	assert.Equal(t, "W1234", works[0].Identifiers.OpenAlexID)
}

func TestClient_CitingWorks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "cites:W2741809807", r.URL.Query().Get("filter"))
		assert.Equal(t, "publication_date:desc", r.URL.Query().Get("sort"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))

		resp := SearchResponse{Results: []Work{sampleWork()}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	works, err := client.CitingWorks(context.Background(), "https://openalex.org/W2741809807", 50)
	require.NoError(t, err)
	require.Len(t, works, 1)
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://doi.org/10.1038/nature12373", "10.1038/nature12373"},
		{"http://doi.org/10.1038/nature12373", "10.1038/nature12373"},
		{"doi:10.1038/Nature12373", "10.1038/nature12373"},
		{" 10.1038/NATURE12373 ", "10.1038/nature12373"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDOI(tt.input), tt.input)
	}
}

func TestNormalizeOpenAlexID(t *testing.T) {
	assert.Equal(t, "W2741809807", normalizeOpenAlexID("https://openalex.org/W2741809807"))
	assert.Equal(t, "W2741809807", normalizeOpenAlexID("W2741809807"))
	assert.Equal(t, "", normalizeOpenAlexID(""))
}

func TestReconstructAbstract(t *testing.T) {
	t.Run("orders words by position", func(t *testing.T) {
		index := map[string][]int{
			"tool":     {4},
			"CRISPR":   {0},
			"is":       {1},
			"a":        {2, 5},
			"powerful": {3},
		}
		assert.Equal(t, "CRISPR is a powerful tool a", reconstructAbstract(index))
	})

	t.Run("returns empty for empty index", func(t *testing.T) {
		assert.Equal(t, "", reconstructAbstract(nil))
	})

	t.Run("rejects oversized indices", func(t *testing.T) {
		positions := make([]int, 100_001)
		for i := range positions {
			positions[i] = i
		}
		assert.Equal(t, "", reconstructAbstract(map[string][]int{"word": positions}))
	})
}
