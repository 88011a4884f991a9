// Package crossref provides a client for the Crossref REST API.
//
// Crossref is the DOI registration agency for most scholarly publishers,
// which makes it the resolver's DOI-centric stage: DOI lookups are
// authoritative here, and bibliographic search covers works that carry a
// DOI but are missing from broader catalogs.
//
// API Documentation: https://api.crossref.org
package crossref

// Response is the envelope Crossref wraps every payload in.
type Response struct {
	Status  string  `json:"status"`
	Message Message `json:"message"`
}

// Message holds either a single work (lookup) or an item list (search).
type Message struct {
	// Items is populated for search responses.
	Items []Work `json:"items"`

	// TotalResults is the total match count for search responses.
	TotalResults int `json:"total-results"`

	// Single-work lookups inline the work fields directly.
	Work
}

// Work represents one Crossref work record.
type Work struct {
	DOI            string                `json:"DOI"`
	Type           string                `json:"type"`
	Title          []string              `json:"title"`
	ContainerTitle []string              `json:"container-title"`
	Author         []Author              `json:"author"`
	Issued         DateParts             `json:"issued"`
	Publisher      string                `json:"publisher"`
	Volume         string                `json:"volume"`
	Issue          string                `json:"issue"`
	Page           string                `json:"page"`
	Abstract       string                `json:"abstract"`
	ISSN           []string              `json:"ISSN"`
	Relation       map[string][]Relation `json:"relation"`
}

// Author is one contributor on a Crossref work.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

// DateParts is Crossref's nested date representation.
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

// Year returns the year component, or 0 when absent.
func (d DateParts) Year() int {
	if len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}

// Relation is one entry in a work's relation map (e.g. is-retracted-by).
type Relation struct {
	IDType string `json:"id-type"`
	ID     string `json:"id"`
}
