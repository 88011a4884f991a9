package domain

import (
	"strings"
)

// WorkIdentifiers holds the external identifiers a work may carry.
type WorkIdentifiers struct {
	DOI        string
	ArXivID    string
	PubMedID   string
	PMCID      string
	OpenAlexID string
	ISBN       string
}

// GenerateCanonicalID generates a canonical identifier from work identifiers.
// Priority order: DOI > ArXiv > PubMed > OpenAlex.
// Returns empty string if no identifiers are available.
func GenerateCanonicalID(ids WorkIdentifiers) string {
	if doi := strings.TrimSpace(ids.DOI); doi != "" {
		// Normalize DOI to lowercase
		return "doi:" + strings.ToLower(doi)
	}

	if arxiv := strings.TrimSpace(ids.ArXivID); arxiv != "" {
		return "arxiv:" + arxiv
	}

	if pubmed := strings.TrimSpace(ids.PubMedID); pubmed != "" {
		return "pubmed:" + pubmed
	}

	if openalex := strings.TrimSpace(ids.OpenAlexID); openalex != "" {
		return "openalex:" + openalex
	}

	return ""
}

// Author represents a work author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// ResolvedWork is the canonical external metadata record matched to a
// bibliography entry. At most one ResolvedWork is attached per entry;
// absence means the entry is unresolved.
type ResolvedWork struct {
	// Source names the metadata provider that resolved the work.
	Source string `json:"source"`

	// Identifiers holds every external identifier the provider returned.
	Identifiers WorkIdentifiers `json:"identifiers"`

	Title    string   `json:"title"`
	Authors  []Author `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
	Venue    string   `json:"venue,omitempty"`
	Abstract string   `json:"abstract,omitempty"`

	// WorkType is the provider's work-type label (article, preprint, book, ...).
	WorkType string `json:"work_type,omitempty"`

	// IsRetracted carries the provider's own retraction flag. Treated as a
	// single lower-confidence signal unless corroborated.
	IsRetracted bool `json:"is_retracted,omitempty"`

	// Confidence is the resolver's aggregate acceptance score in [0,1].
	Confidence float64 `json:"confidence"`

	// Cites and CitedBy enumerate raw provider identifiers of works this
	// work cites and works citing it. Only the broad-coverage source fills
	// these; deep analysis degrades gracefully when they are empty.
	Cites   []string `json:"cites,omitempty"`
	CitedBy []string `json:"cited_by,omitempty"`

	RawMetadata map[string]interface{} `json:"-"`
}

// CanonicalID returns the stable identity used for graph node dedup.
func (w *ResolvedWork) CanonicalID() string {
	return GenerateCanonicalID(w.Identifiers)
}

// HasIdentifier returns true if the work carries at least one identifier.
func (w *ResolvedWork) HasIdentifier() bool {
	return w.CanonicalID() != ""
}

// FirstAuthorName returns the name of the first listed author, or "".
func (w *ResolvedWork) FirstAuthorName() string {
	if len(w.Authors) == 0 {
		return ""
	}
	return w.Authors[0].Name
}
