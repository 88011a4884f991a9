// Package llm provides LLM-backed JSON completion for the Citation
// Integrity Service.
//
// The service uses an LLM at a handful of well-bounded decision points:
// disambiguating citation matches, verdicts in the low-confidence
// resolution band, judging citation appropriateness, selecting key
// references, and validating section headings. Every call requests a
// JSON response, and every caller decodes it through DecodeInto so that
// malformed output is handled in one place.
//
// Calls are metered by a shared Budget; when the budget is exhausted
// each caller falls back to its deterministic behavior.
package llm

import "context"

// Request contains the prompts and parameters for a single completion.
type Request struct {
	// Operation labels the call site for metrics and logging
	// (e.g., "match_disambiguation", "appropriateness").
	Operation string

	// System is the system-level instruction. It should state the
	// expected JSON shape.
	System string

	// User is the user-level prompt containing the data to judge.
	User string

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int

	// Temperature overrides the configured temperature when non-nil.
	Temperature *float64
}

// Result contains the completion content and usage metadata.
type Result struct {
	// Content is the raw text of the model's response. Callers decode
	// it with DecodeInto.
	Content string

	// Model is the model identifier that produced the response.
	Model string

	// InputTokens is the number of prompt tokens consumed.
	InputTokens int

	// OutputTokens is the number of completion tokens produced.
	OutputTokens int
}

// Client defines the interface for LLM completion providers.
//
// Implementations handle provider-specific API calls, retry transient
// failures, and return wrapped errors with provider context.
type Client interface {
	// Complete sends the request and returns the model's response.
	// The context should be used for cancellation and deadline
	// propagation.
	Complete(ctx context.Context, req Request) (*Result, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}
