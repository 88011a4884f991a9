package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the citation integrity engine.
// Metrics are organized by subsystem: documents, matching, resolution, external
// sources, cache, LLM operations, and deep analysis. All counters and histograms
// are registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// DocumentsAnalyzed counts the total number of documents analyzed successfully.
	DocumentsAnalyzed prometheus.Counter

	// DocumentsFailed counts the total number of documents that ended in failure.
	DocumentsFailed prometheus.Counter

	// DocumentDuration observes the end-to-end analysis duration in seconds.
	DocumentDuration prometheus.Histogram

	// MentionsParsed observes the distribution of citation mentions per document.
	MentionsParsed prometheus.Histogram

	// BibliographyEntriesParsed observes the distribution of bibliography entries per document.
	BibliographyEntriesParsed prometheus.Histogram

	// MatchesTotal counts citation-to-bibliography match outcomes, labeled by method.
	MatchesTotal *prometheus.CounterVec

	// MatchesAmbiguous counts matches that remained ambiguous after all disambiguation.
	MatchesAmbiguous prometheus.Counter

	// ResolutionsTotal counts resolver stage outcomes, labeled by source and outcome.
	ResolutionsTotal *prometheus.CounterVec

	// IssuesFound counts integrity issues, labeled by kind and severity.
	IssuesFound *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to metadata source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to metadata source APIs, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to metadata source APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from metadata source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// CacheHits counts response cache hits, labeled by source.
	CacheHits *prometheus.CounterVec

	// CacheMisses counts response cache misses, labeled by source.
	CacheMisses *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by operation and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by operation, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by operation and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMBudgetDenials counts escalation points that fell back to deterministic
	// behaviour because the per-document LLM budget was exhausted, labeled by stage.
	LLMBudgetDenials *prometheus.CounterVec

	// DeepAnalysisRuns counts deep-analysis runs, labeled by terminal status.
	DeepAnalysisRuns *prometheus.CounterVec

	// DeepGraphNodes observes the final citation-graph node count per run.
	DeepGraphNodes prometheus.Histogram

	// DeepGraphEdges observes the final citation-graph edge count per run.
	DeepGraphEdges prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Documents
		DocumentsAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_analyzed_total",
			Help:      "Total number of documents analyzed successfully",
		}),
		DocumentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_failed_total",
			Help:      "Total number of document analyses that failed",
		}),
		DocumentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "End-to-end duration of document analysis in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),
		MentionsParsed: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mentions_per_document",
			Help:      "Number of in-text citation mentions parsed per document",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		BibliographyEntriesParsed: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bibliography_entries_per_document",
			Help:      "Number of bibliography entries parsed per document",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		// Matching
		MatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Total number of citation-to-bibliography match outcomes by method",
		}, []string{"method"}),
		MatchesAmbiguous: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_ambiguous_total",
			Help:      "Total number of matches left ambiguous after disambiguation",
		}),

		// Resolution
		ResolutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of resolver stage outcomes by source",
		}, []string{"source", "outcome"}),

		// Checks
		IssuesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_found_total",
			Help:      "Total number of integrity issues found by kind",
		}, []string{"kind", "severity"}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to metadata sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to metadata sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to metadata sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from metadata sources",
		}, []string{"source"}),

		// Cache
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of response cache hits by source",
		}, []string{"source"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of response cache misses by source",
		}, []string{"source"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by operation",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation", "model"}),
		LLMBudgetDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_budget_denials_total",
			Help:      "Total number of LLM escalations denied by the per-document budget",
		}, []string{"stage"}),

		// Deep analysis
		DeepAnalysisRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deep_analysis_runs_total",
			Help:      "Total number of deep-analysis runs by terminal status",
		}, []string{"status"}),
		DeepGraphNodes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deep_graph_nodes",
			Help:      "Number of citation-graph nodes per deep-analysis run",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		DeepGraphEdges: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deep_graph_edges",
			Help:      "Number of citation-graph edges per deep-analysis run",
			Buckets:   []float64{10, 100, 500, 1000, 5000, 10000, 50000, 100000},
		}),
	}
}

// RecordDocumentAnalyzed records a successful document analysis.
func (m *Metrics) RecordDocumentAnalyzed(durationSeconds float64, mentions, entries int) {
	m.DocumentsAnalyzed.Inc()
	m.DocumentDuration.Observe(durationSeconds)
	m.MentionsParsed.Observe(float64(mentions))
	m.BibliographyEntriesParsed.Observe(float64(entries))
}

// RecordDocumentFailed records a failed document analysis.
func (m *Metrics) RecordDocumentFailed(durationSeconds float64) {
	m.DocumentsFailed.Inc()
	m.DocumentDuration.Observe(durationSeconds)
}

// RecordMatch records a match outcome.
func (m *Metrics) RecordMatch(method string, ambiguous bool) {
	m.MatchesTotal.WithLabelValues(method).Inc()
	if ambiguous {
		m.MatchesAmbiguous.Inc()
	}
}

// RecordResolution records a resolver stage outcome.
func (m *Metrics) RecordResolution(source, outcome string) {
	m.ResolutionsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordIssue records a flagged integrity issue.
func (m *Metrics) RecordIssue(kind, severity string) {
	m.IssuesFound.WithLabelValues(kind, severity).Inc()
}

// RecordSourceRequest records a request to a metadata source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a metadata source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordCacheHit records a response cache hit.
func (m *Metrics) RecordCacheHit(source string) {
	m.CacheHits.WithLabelValues(source).Inc()
}

// RecordCacheMiss records a response cache miss.
func (m *Metrics) RecordCacheMiss(source string) {
	m.CacheMisses.WithLabelValues(source).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64) {
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordLLMBudgetDenial records an escalation denied by the call budget.
func (m *Metrics) RecordLLMBudgetDenial(stage string) {
	m.LLMBudgetDenials.WithLabelValues(stage).Inc()
}

// RecordDeepAnalysis records a deep-analysis run outcome.
func (m *Metrics) RecordDeepAnalysis(status string, nodes, edges int) {
	m.DeepAnalysisRuns.WithLabelValues(status).Inc()
	m.DeepGraphNodes.Observe(float64(nodes))
	m.DeepGraphEdges.Observe(float64(edges))
}
