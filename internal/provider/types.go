// Package provider implements the AI Provider Gateway (§4.4): a narrow,
// provider-agnostic interface over three text/embedding backends, with the
// two-step reason-then-structure pipeline for backends that lack native
// strict JSON output.
package provider

import "context"

// Effort is the caller's requested reasoning effort; backends that expose a
// matching concept (e.g. model tiers) use it to pick a model.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Kind identifies which backend handles a request.
type Kind string

const (
	KindEdge   Kind = "edge"
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

// TextOptions configures generate_text and rewrite_question_for_mcp calls.
type TextOptions struct {
	Provider        Kind
	Model           string
	ReasoningEffort Effort
	Sanitize        bool
}

// StructuredOptions configures generate_structured calls. Schema is a JSON
// Schema document describing the desired shape of the result.
type StructuredOptions struct {
	Provider        Kind
	Model           string
	ReasoningEffort Effort
	Schema          map[string]any
}

// EmbeddingOptions configures generate_embeddings calls.
type EmbeddingOptions struct {
	Provider Kind
	Model    string
}

// RewriteContext carries the optional structured hints a caller can supply
// to steer rewrite_question_for_mcp: bindings, libraries in scope, tags,
// and code snippets relevant to the question.
type RewriteContext struct {
	Bindings     map[string]string `json:"bindings,omitempty"`
	Libraries    []string          `json:"libraries,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CodeSnippets []string          `json:"code_snippets,omitempty"`
}

// Backend is a single AI provider's native capabilities. Gateway composes
// one Backend per Kind and dispatches on the caller's requested provider.
type Backend interface {
	Kind() Kind

	// GenerateText returns a plain-string completion.
	GenerateText(ctx context.Context, prompt, system string, opts TextOptions) (string, error)

	// GenerateStructured returns a JSON payload conforming to opts.Schema.
	// Backends with native strict structured output run in one step;
	// others (edge) are driven through the two-step pipeline by Gateway.
	GenerateStructured(ctx context.Context, prompt string, opts StructuredOptions) (string, error)

	// GenerateEmbeddings returns a fixed-dimensional vector for text.
	GenerateEmbeddings(ctx context.Context, text string, opts EmbeddingOptions) ([]float32, error)

	// SupportsNativeStructured reports whether GenerateStructured can
	// satisfy strict schema adherence in a single call.
	SupportsNativeStructured() bool
}
