package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCanonicalID(t *testing.T) {
	tests := []struct {
		name string
		ids  WorkIdentifiers
		want string
	}{
		{
			name: "DOI wins over everything",
			ids: WorkIdentifiers{
				DOI:        "10.1038/Nature12373",
				ArXivID:    "1706.03762",
				PubMedID:   "24906146",
				OpenAlexID: "W2741809807",
			},
			want: "doi:10.1038/nature12373",
		},
		{
			name: "arXiv before PubMed",
			ids:  WorkIdentifiers{ArXivID: "1706.03762", PubMedID: "24906146"},
			want: "arxiv:1706.03762",
		},
		{
			name: "PubMed before OpenAlex",
			ids:  WorkIdentifiers{PubMedID: "24906146", OpenAlexID: "W2741809807"},
			want: "pubmed:24906146",
		},
		{
			name: "OpenAlex as last resort",
			ids:  WorkIdentifiers{OpenAlexID: "W2741809807"},
			want: "openalex:W2741809807",
		},
		{
			name: "whitespace-only identifiers are ignored",
			ids:  WorkIdentifiers{DOI: "  ", PubMedID: "24906146"},
			want: "pubmed:24906146",
		},
		{
			name: "no identifiers",
			ids:  WorkIdentifiers{ISBN: "978-0-00-000000-0"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateCanonicalID(tt.ids))
		})
	}
}

func TestResolvedWork_CanonicalID(t *testing.T) {
	work := &ResolvedWork{Identifiers: WorkIdentifiers{DOI: "10.1000/XYZ"}}
	assert.Equal(t, "doi:10.1000/xyz", work.CanonicalID())
	assert.True(t, work.HasIdentifier())

	anonymous := &ResolvedWork{Title: "Untraceable"}
	assert.Equal(t, "", anonymous.CanonicalID())
	assert.False(t, anonymous.HasIdentifier())
}

func TestResolvedWork_FirstAuthorName(t *testing.T) {
	work := &ResolvedWork{Authors: []Author{{Name: "Ada Lovelace"}, {Name: "Charles Babbage"}}}
	assert.Equal(t, "Ada Lovelace", work.FirstAuthorName())

	assert.Equal(t, "", (&ResolvedWork{}).FirstAuthorName())
}

func TestAuthor_String(t *testing.T) {
	tests := []struct {
		name   string
		author Author
		want   string
	}{
		{
			name:   "name only",
			author: Author{Name: "Ada Lovelace"},
			want:   "Ada Lovelace",
		},
		{
			name:   "with affiliation",
			author: Author{Name: "Ada Lovelace", Affiliation: "Analytical Engine Lab"},
			want:   "Ada Lovelace (Analytical Engine Lab)",
		},
		{
			name:   "with affiliation and ORCID",
			author: Author{Name: "Ada Lovelace", Affiliation: "AEL", ORCID: "0000-0001-2345-6789"},
			want:   "Ada Lovelace (AEL) [0000-0001-2345-6789]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.author.String())
		})
	}
}
