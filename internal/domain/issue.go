package domain

// IssueKind enumerates the integrity problems the checks can flag.
type IssueKind string

// Issue kinds.
const (
	IssueMissingBibliographyRef   IssueKind = "missing_bibliography_ref"
	IssueUnresolvedRef            IssueKind = "unresolved_ref"
	IssueRetracted                IssueKind = "retracted"
	IssuePredatoryVenue           IssueKind = "predatory_venue"
	IssueInappropriateCitation    IssueKind = "inappropriate_citation"
	IssueAmbiguousBibliographyRef IssueKind = "ambiguous_bibliography_ref"
)

// IssueSeverity grades how confidently an issue is asserted.
type IssueSeverity string

// Issue severities. ReviewNeeded frames lower-confidence signals that a
// human should confirm rather than hard failures.
const (
	SeverityHigh         IssueSeverity = "high"
	SeverityReviewNeeded IssueSeverity = "review_needed"
)

// Issue is one flagged integrity problem. Created once per detected
// problem and never mutated afterward.
type Issue struct {
	Kind     IssueKind     `json:"kind"`
	Severity IssueSeverity `json:"severity"`

	// EntryID implicates a bibliography entry, "" when mention-scoped.
	EntryID string `json:"entry_id,omitempty"`

	// MentionID implicates an in-text mention, "" when entry-scoped.
	MentionID string `json:"mention_id,omitempty"`

	// Summary is a one-line human-readable description.
	Summary string `json:"summary"`

	// Evidence holds supporting detail: matched fields, source names,
	// quoted text. Keys are stable so report consumers can rely on them.
	Evidence map[string]string `json:"evidence,omitempty"`
}
