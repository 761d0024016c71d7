package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// jsonSchema adapts a plain map to openai.ChatCompletionResponseFormatJSONSchema's
// json.Marshaler-typed Schema field.
type jsonSchema map[string]any

func (s jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// OpenAIBackend implements Backend over the OpenAI Chat Completions and
// Embeddings APIs. Structured output is native (response_format:
// json_schema with strict:true), so it never goes through the two-step
// pipeline Gateway reserves for the edge backend.
type OpenAIBackend struct {
	client     *openai.Client
	textModel  string
	embedModel string
	logger     *zap.Logger
}

// OpenAIConfig configures credentials and default models.
type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	TextModel  string
	EmbedModel string
}

func NewOpenAIBackend(cfg OpenAIConfig, logger *zap.Logger) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	textModel := cfg.TextModel
	if textModel == "" {
		textModel = openai.GPT4oMini
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIBackend{
		client:     openai.NewClientWithConfig(clientCfg),
		textModel:  textModel,
		embedModel: embedModel,
		logger:     logger,
	}
}

func (o *OpenAIBackend) Kind() Kind                     { return KindOpenAI }
func (o *OpenAIBackend) SupportsNativeStructured() bool { return true }

func (o *OpenAIBackend) GenerateText(ctx context.Context, prompt, system string, opts TextOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = o.textModel
	}
	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai generate_text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai generate_text: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIBackend) GenerateStructured(ctx context.Context, prompt string, opts StructuredOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = o.textModel
	}
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "result",
				Schema: jsonSchema(opts.Schema),
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai generate_structured: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai generate_structured: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIBackend) GenerateEmbeddings(ctx context.Context, text string, opts EmbeddingOptions) ([]float32, error) {
	model := opts.Model
	if model == "" {
		model = o.embedModel
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai generate_embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai generate_embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}
