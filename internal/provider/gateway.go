package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	ollama "github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/errs"
)

// Gateway is the single entry point for every AI operation in the system
// (§4.4): it owns one Backend per Kind, dispatches on the caller's
// requested provider, runs the two-step pipeline for backends without
// native structured output, and memoizes embeddings.
type Gateway struct {
	mu       sync.RWMutex
	backends map[Kind]Backend
	defaultP Kind
	cache    *embeddingCache
	logger   *zap.Logger
}

// NewGateway creates an empty Gateway; backends register themselves with
// Register. The default provider is edge per §4.4.
func NewGateway(logger *zap.Logger) (*Gateway, error) {
	cache, err := newEmbeddingCache()
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &Gateway{
		backends: make(map[Kind]Backend),
		defaultP: KindEdge,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Register installs a backend, making its Kind available for dispatch.
func (g *Gateway) Register(b Backend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backends[b.Kind()] = b
}

// Available reports whether a provider has been registered (credentials
// present at startup), used to answer "absence disables that provider".
func (g *Gateway) Available(kind Kind) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.backends[kind]
	return ok
}

func (g *Gateway) backend(kind Kind) (Backend, error) {
	if kind == "" {
		kind = g.defaultP
	}
	g.mu.RLock()
	b, ok := g.backends[kind]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q not configured: %w", kind, errs.ErrInvalidInput)
	}
	return b, nil
}

// GenerateText returns a plain-string completion from the requested (or
// default) provider.
func (g *Gateway) GenerateText(ctx context.Context, prompt, system string, opts TextOptions) (string, error) {
	b, err := g.backend(opts.Provider)
	if err != nil {
		return "", err
	}
	text, err := b.GenerateText(ctx, prompt, system, opts)
	if err != nil {
		return "", classifyBackendError(err)
	}
	if opts.Sanitize {
		text = Sanitize(text)
	}
	return text, nil
}

// GenerateStructured returns a JSON payload conforming to schema. Native
// backends (openai, gemini) answer in one call; the edge backend is driven
// through reasoning-then-structuring, per §4.4.
func (g *Gateway) GenerateStructured(ctx context.Context, prompt string, schema map[string]any, opts StructuredOptions) (string, error) {
	b, err := g.backend(opts.Provider)
	if err != nil {
		return "", err
	}
	opts.Schema = schema

	var raw string
	if b.SupportsNativeStructured() {
		raw, err = b.GenerateStructured(ctx, prompt, opts)
	} else {
		reasoning, rErr := b.GenerateText(ctx, prompt, "Analyze comprehensively.", TextOptions{
			Provider:        opts.Provider,
			ReasoningEffort: opts.ReasoningEffort,
		})
		if rErr != nil {
			return "", classifyBackendError(rErr)
		}
		raw, err = b.GenerateStructured(ctx, reasoning, opts)
	}
	if err != nil {
		return "", classifyBackendError(err)
	}

	if json.Valid([]byte(raw)) {
		return raw, nil
	}
	sanitized := Sanitize(raw)
	if json.Valid([]byte(sanitized)) {
		return sanitized, nil
	}
	g.logger.Debug("structured generation failed to parse after sanitize", zap.String("payload", raw))
	return "", fmt.Errorf("provider %s: %w", b.Kind(), errs.ErrStructuredGeneration)
}

// GenerateEmbeddings returns a fixed-dimensional vector, serving a cached
// result when the same provider+model+text has been embedded before.
func (g *Gateway) GenerateEmbeddings(ctx context.Context, text string, opts EmbeddingOptions) ([]float32, error) {
	b, err := g.backend(opts.Provider)
	if err != nil {
		return nil, err
	}
	key := embeddingCacheKey(b.Kind(), opts.Model, text)
	if vec, ok := g.cache.get(key); ok {
		return vec, nil
	}
	vec, err := b.GenerateEmbeddings(ctx, text, opts)
	if err != nil {
		return nil, classifyBackendError(err)
	}
	g.cache.set(key, vec)
	return vec, nil
}

// RewriteQuestionForMCP rewrites a natural-language question into a more
// retrieval-friendly form, optionally steered by structured context.
func (g *Gateway) RewriteQuestionForMCP(ctx context.Context, query string, rc *RewriteContext, opts TextOptions) (string, error) {
	prompt := buildRewritePrompt(query, rc)
	text, err := g.GenerateText(ctx, prompt, "You rewrite questions into precise, retrieval-friendly search queries. Respond with the rewritten query only.", opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Sanitize exposes the pure sanitize operation through the Gateway so
// callers (the HTTP surface) need only depend on one type.
func (g *Gateway) Sanitize(text string) string {
	return Sanitize(text)
}

func buildRewritePrompt(query string, rc *RewriteContext) string {
	var sb strings.Builder
	sb.WriteString("Original question: ")
	sb.WriteString(query)
	if rc == nil {
		return sb.String()
	}
	if len(rc.Tags) > 0 {
		sb.WriteString("\nRelevant tags: ")
		sb.WriteString(strings.Join(rc.Tags, ", "))
	}
	if len(rc.Libraries) > 0 {
		sb.WriteString("\nLibraries in scope: ")
		sb.WriteString(strings.Join(rc.Libraries, ", "))
	}
	for k, v := range rc.Bindings {
		sb.WriteString(fmt.Sprintf("\nBinding %s = %s", k, v))
	}
	for _, snippet := range rc.CodeSnippets {
		sb.WriteString("\nCode snippet:\n")
		sb.WriteString(snippet)
	}
	return sb.String()
}

// classifyBackendError maps a backend SDK error onto the error kinds of
// §7: 4xx-shaped failures become ErrPermanentBackend, everything else
// (network, timeout, 5xx) becomes ErrTransientBackend so retry policies
// upstream (ingestion consumer, curator) can act on it.
func classifyBackendError(err error) error {
	if err == nil {
		return nil
	}

	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) && oaiErr.HTTPStatusCode >= 400 && oaiErr.HTTPStatusCode < 500 {
		return fmt.Errorf("%w: %v", errs.ErrPermanentBackend, err)
	}

	var ollamaErr ollama.StatusError
	if errors.As(err, &ollamaErr) && ollamaErr.StatusCode >= 400 && ollamaErr.StatusCode < 500 {
		return fmt.Errorf("%w: %v", errs.ErrPermanentBackend, err)
	}

	return fmt.Errorf("%w: %v", errs.ErrTransientBackend, err)
}
