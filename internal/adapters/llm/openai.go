package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/example/dialectica/internal/ports/secondary"
)

const systemPersona = "You are a careful research analyst. Follow the requested output format exactly."

// OpenAIProvider calls an OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for model. An empty baseURL keeps
// the library default.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Name implements secondary.LLMProvider.
func (o *OpenAIProvider) Name() string {
	return "openai/" + o.model
}

// Generate implements secondary.LLMProvider.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, params secondary.GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIProvider.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPersona},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = params.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: openai call failed: %w", secondary.ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("openai returned no choices")
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", secondary.ErrProvider, err)
	}
	slog.DebugContext(ctx, "openai generation complete", "model", o.model, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
