package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	runIDKey      contextKey = "run_id"
	documentIDKey contextKey = "document_id"
	componentKey  contextKey = "component"
)

// WithRunID adds a run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithDocumentID adds a document ID to the context.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, documentIDKey, documentID)
}

// DocumentIDFromContext retrieves the document ID from context.
// Returns empty string if not present.
func DocumentIDFromContext(ctx context.Context) string {
	if v := ctx.Value(documentIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithComponentName adds the active pipeline component name to the context.
func WithComponentName(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// ComponentFromContext retrieves the pipeline component name from context.
// Returns empty string if not present.
func ComponentFromContext(ctx context.Context) string {
	if v := ctx.Value(componentKey); v != nil {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}

// RunContext contains all the context data for one document analysis run.
type RunContext struct {
	RunID      string
	DocumentID string
	Component  string
}

// WithRunContextFull adds all run context to the context.
func WithRunContextFull(ctx context.Context, rc RunContext) context.Context {
	if rc.RunID != "" {
		ctx = WithRunID(ctx, rc.RunID)
	}
	if rc.DocumentID != "" {
		ctx = WithDocumentID(ctx, rc.DocumentID)
	}
	if rc.Component != "" {
		ctx = WithComponentName(ctx, rc.Component)
	}
	return ctx
}

// RunContextFromContext extracts all run context from the context.
func RunContextFromContext(ctx context.Context) RunContext {
	return RunContext{
		RunID:      RunIDFromContext(ctx),
		DocumentID: DocumentIDFromContext(ctx),
		Component:  ComponentFromContext(ctx),
	}
}
