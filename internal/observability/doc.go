// Package observability provides logging and metrics support for the
// citation integrity engine.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for documents, matching, resolution, sources,
//     cache, LLM calls, and deep analysis
//   - Context helpers for propagating per-run data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("run_id", runID).Msg("analysis started")
//
// Add run context to a logger:
//
//	logger = observability.WithRunContext(logger, runID, documentID)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("citecheck")
//
// Record metrics:
//
//	metrics.RecordMatch("author_year", false)
//	metrics.RecordResolution("openalex", "accepted")
//	metrics.RecordCacheHit("crossref")
//
// # Context Helpers
//
// Store and retrieve run context:
//
//	ctx = observability.WithRunID(ctx, runID)
//	ctx = observability.WithDocumentID(ctx, documentID)
//
//	runID := observability.RunIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the engine:
//
//   - run_id: Analysis run identifier
//   - document_id: Manuscript identifier supplied by the caller
//   - component: Pipeline component (parser, matcher, resolver, ...)
//   - source: Metadata source (openalex, crossref, pubmed, arxiv)
//   - entry_id: Bibliography entry identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
