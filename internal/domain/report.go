package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecommendationAction enumerates the revision action types, listed in
// precedence order used when merging near-duplicate recommendations.
type RecommendationAction string

// Recommendation actions. Precedence: reconsider > justify > add > strengthen.
const (
	ActionReconsider RecommendationAction = "reconsider"
	ActionJustify    RecommendationAction = "justify"
	ActionAdd        RecommendationAction = "add"
	ActionStrengthen RecommendationAction = "strengthen"
)

// ActionPrecedence returns the merge precedence weight of an action type.
// Unknown actions rank below all known ones.
func ActionPrecedence(a RecommendationAction) int {
	switch a {
	case ActionReconsider:
		return 95
	case ActionJustify:
		return 90
	case ActionAdd:
		return 85
	case ActionStrengthen:
		return 80
	default:
		return 75
	}
}

// RecommendationItem is one actionable revision suggestion. Immutable once
// emitted by the aggregator.
type RecommendationItem struct {
	SectionTitle string               `json:"section_title"`
	ActionType   RecommendationAction `json:"action_type"`
	Action       string               `json:"action"`
	Why          string               `json:"why,omitempty"`
	Where        string               `json:"where,omitempty"`

	// AnchorQuote is a quoted manuscript span for locating the edit.
	AnchorQuote string `json:"anchor_quote,omitempty"`

	// RefIDs are the bibliography/candidate reference ids the action targets.
	RefIDs []string `json:"ref_ids,omitempty"`
}

// RecommendationSection groups the per-section capped action list.
type RecommendationSection struct {
	Title   string               `json:"title"`
	Actions []RecommendationItem `json:"actions"`
}

// Recommendations is the aggregator's output: a ranked global list plus
// per-section lists that never repeat a globally promoted item.
type Recommendations struct {
	Status        string                  `json:"status"`
	Overview      string                  `json:"overview,omitempty"`
	GlobalActions []RecommendationItem    `json:"global_actions,omitempty"`
	Sections      []RecommendationSection `json:"sections,omitempty"`
	Note          string                  `json:"note,omitempty"`
}

// GraphSummary describes the deep-analysis citation graph at a glance.
type GraphSummary struct {
	NodeCount          int  `json:"node_count"`
	EdgeCount          int  `json:"edge_count"`
	LargestClusterSize int  `json:"largest_cluster_size"`
	Truncated          bool `json:"truncated,omitempty"`
}

// ReferenceCategories lists node ids per deep-analysis category. Each list
// holds the top decile for its measure, in deterministic rank order.
type ReferenceCategories struct {
	HighlyConnected       []string `json:"highly_connected,omitempty"`
	BridgePapers          []string `json:"bridge_papers,omitempty"`
	CorePapers            []string `json:"core_papers,omitempty"`
	BibliographicCoupling []string `json:"bibliographic_coupling,omitempty"`
	TangentialCitations   []string `json:"tangential_citations,omitempty"`
}

// DeepAnalysisStatus enumerates the engine's terminal states.
type DeepAnalysisStatus string

// Deep analysis terminal states. Failure is never fatal for the document.
const (
	DeepNotRun    DeepAnalysisStatus = "not_run"
	DeepCompleted DeepAnalysisStatus = "completed"
	DeepPartial   DeepAnalysisStatus = "partial"
	DeepSkipped   DeepAnalysisStatus = "skipped"
	DeepFailed    DeepAnalysisStatus = "failed"
)

// DeepAnalysis is the optional citation-network result block.
type DeepAnalysis struct {
	Status DeepAnalysisStatus `json:"status"`

	// Reason explains skipped/partial/failed states.
	Reason string `json:"reason,omitempty"`

	KeyReferenceIDs []string            `json:"key_reference_ids,omitempty"`
	Graph           GraphSummary        `json:"graph"`
	Categories      ReferenceCategories `json:"categories"`
	Recommendations Recommendations     `json:"recommendations"`
	SectionTitles   []string            `json:"section_titles,omitempty"`
}

// BrokenNumbering is disclosed at report level when the bibliography's
// numeric indexing was judged unreliable and position-inferred matching
// was used instead.
type BrokenNumbering struct {
	Detected bool   `json:"detected"`
	Reason   string `json:"reason,omitempty"`
}

// Report is the one structured result object emitted per document. Its
// shape is a public contract: additive changes only.
type Report struct {
	RunID       uuid.UUID `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	System          CitationSystem  `json:"system"`
	SecondarySystem CitationSystem  `json:"secondary_system,omitempty"`
	BrokenNumbering BrokenNumbering `json:"broken_numbering"`

	Mentions     []CitationMention   `json:"mentions"`
	Bibliography []BibliographyEntry `json:"bibliography"`
	Matches      []MatchResult       `json:"matches"`
	Issues       []Issue             `json:"issues"`

	// IssueCounts aggregates issues by kind for report-level display.
	IssueCounts map[IssueKind]int `json:"issue_counts,omitempty"`

	// BudgetSpent records how many LLM calls the run consumed.
	BudgetSpent int `json:"budget_spent"`

	// BudgetExhausted records that later escalation points fell back to
	// deterministic behaviour after the cap was reached.
	BudgetExhausted bool `json:"budget_exhausted,omitempty"`

	Deep *DeepAnalysis `json:"deep_analysis,omitempty"`
}
