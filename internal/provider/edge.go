package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	fastembed "github.com/anush008/fastembed-go"
	ollama "github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// EdgeBackend is the local/self-hosted provider: text generation through an
// Ollama daemon and embeddings through an in-process fastembed model. It is
// the default provider per §4.4 and the only one driven through the
// two-step reason-then-structure pipeline (it has no native strict JSON
// response format).
type EdgeBackend struct {
	client         *ollama.Client
	embedder       *fastembed.FlagEmbedding
	reasoningModel string
	structureModel string
	logger         *zap.Logger
}

// EdgeConfig configures the edge backend's Ollama endpoint and default
// model per role.
type EdgeConfig struct {
	Host           string
	ReasoningModel string
	StructureModel string
	CacheDir       string
}

// NewEdgeBackend dials Ollama and loads the local embedding model.
func NewEdgeBackend(cfg EdgeConfig, logger *zap.Logger) (*EdgeBackend, error) {
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	client := ollama.NewClient(u, &http.Client{Timeout: 120 * time.Second})

	embedder, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    fastembed.BGEBaseENV15,
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("init fastembed: %w", err)
	}

	reasoningModel := cfg.ReasoningModel
	if reasoningModel == "" {
		reasoningModel = "llama3.1"
	}
	structureModel := cfg.StructureModel
	if structureModel == "" {
		structureModel = reasoningModel
	}

	return &EdgeBackend{
		client:         client,
		embedder:       embedder,
		reasoningModel: reasoningModel,
		structureModel: structureModel,
		logger:         logger,
	}, nil
}

func (e *EdgeBackend) Kind() Kind                     { return KindEdge }
func (e *EdgeBackend) SupportsNativeStructured() bool { return false }

// Close releases the embedding model's native resources.
func (e *EdgeBackend) Close() error {
	if e.embedder != nil {
		e.embedder.Destroy()
	}
	return nil
}

func (e *EdgeBackend) GenerateText(ctx context.Context, prompt, system string, opts TextOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = e.reasoningModel
	}
	full := prompt
	if strings.TrimSpace(system) != "" {
		full = system + "\n\n" + prompt
	}

	var sb strings.Builder
	req := &ollama.GenerateRequest{Model: model, Prompt: full}
	err := e.client.Generate(ctx, req, func(r ollama.GenerateResponse) error {
		sb.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("edge generate_text: %w", err)
	}
	return sb.String(), nil
}

// GenerateStructured is the structuring phase of the two-step pipeline:
// the Gateway has already produced the reasoning output and passes it here
// as prompt. The structure-tier model's output is constrained to
// opts.Schema through Ollama's format field (plain JSON mode when no
// schema is given).
func (e *EdgeBackend) GenerateStructured(ctx context.Context, prompt string, opts StructuredOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = e.structureModel
	}
	instruction := "Respond with JSON only, matching this schema, and no other text:\n"
	schemaJSON, err := json.Marshal(opts.Schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	full := instruction + string(schemaJSON) + "\n\n" + prompt

	format := json.RawMessage(`"json"`)
	if opts.Schema != nil {
		format = json.RawMessage(schemaJSON)
	}

	var sb strings.Builder
	req := &ollama.GenerateRequest{
		Model:  model,
		Prompt: full,
		Format: format,
	}
	if genErr := e.client.Generate(ctx, req, func(r ollama.GenerateResponse) error {
		sb.WriteString(r.Response)
		return nil
	}); genErr != nil {
		return "", fmt.Errorf("edge generate_structured: %w", genErr)
	}
	return sb.String(), nil
}

func (e *EdgeBackend) GenerateEmbeddings(ctx context.Context, text string, opts EmbeddingOptions) ([]float32, error) {
	vec, err := e.embedder.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("edge generate_embeddings: %w", err)
	}
	return vec, nil
}
