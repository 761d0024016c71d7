package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiBackend implements Backend over the Gemini API. Structured output
// is native via GenerationConfig.ResponseSchema, so it runs in one step.
type GeminiBackend struct {
	client     *genai.Client
	textModel  string
	embedModel string
	logger     *zap.Logger
}

// GeminiConfig configures credentials and default models.
type GeminiConfig struct {
	APIKey     string
	TextModel  string
	EmbedModel string
}

// NewGeminiBackend dials the Gemini API.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	textModel := cfg.TextModel
	if textModel == "" {
		textModel = "gemini-1.5-flash"
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	return &GeminiBackend{client: client, textModel: textModel, embedModel: embedModel, logger: logger}, nil
}

func (g *GeminiBackend) Kind() Kind                     { return KindGemini }
func (g *GeminiBackend) SupportsNativeStructured() bool { return true }

// Close releases the underlying gRPC connection.
func (g *GeminiBackend) Close() error { return g.client.Close() }

func (g *GeminiBackend) GenerateText(ctx context.Context, prompt, system string, opts TextOptions) (string, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = g.textModel
	}
	model := g.client.GenerativeModel(modelName)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate_text: %w", err)
	}
	return firstTextPart(resp)
}

func (g *GeminiBackend) GenerateStructured(ctx context.Context, prompt string, opts StructuredOptions) (string, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = g.textModel
	}
	model := g.client.GenerativeModel(modelName)
	model.GenerationConfig.ResponseMIMEType = "application/json"
	if schema, err := toGenaiSchema(opts.Schema); err == nil {
		model.GenerationConfig.ResponseSchema = schema
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate_structured: %w", err)
	}
	return firstTextPart(resp)
}

func (g *GeminiBackend) GenerateEmbeddings(ctx context.Context, text string, opts EmbeddingOptions) ([]float32, error) {
	modelName := opts.Model
	if modelName == "" {
		modelName = g.embedModel
	}
	em := g.client.EmbeddingModel(modelName)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini generate_embeddings: %w", err)
	}
	if resp.Embedding == nil {
		return nil, errors.New("gemini generate_embeddings: empty response")
	}
	return resp.Embedding.Values, nil
}

func firstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: empty response")
	}
	if text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text); ok {
		return string(text), nil
	}
	return "", errors.New("gemini: non-text response part")
}

// toGenaiSchema does a best-effort translation of a JSON Schema object
// (object/array/string/number/integer/boolean, with properties/items/
// required) into the subset genai.Schema supports.
func toGenaiSchema(schema map[string]any) (*genai.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var node jsonSchemaNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	return node.toGenai(), nil
}

type jsonSchemaNode struct {
	Type        string                    `json:"type"`
	Properties  map[string]jsonSchemaNode `json:"properties,omitempty"`
	Items       *jsonSchemaNode           `json:"items,omitempty"`
	Required    []string                  `json:"required,omitempty"`
	Description string                    `json:"description,omitempty"`
}

func (n jsonSchemaNode) toGenai() *genai.Schema {
	s := &genai.Schema{
		Type:        genaiType(n.Type),
		Description: n.Description,
		Required:    n.Required,
	}
	if len(n.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(n.Properties))
		for k, v := range n.Properties {
			s.Properties[k] = v.toGenai()
		}
	}
	if n.Items != nil {
		s.Items = n.Items.toGenai()
	}
	return s
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
