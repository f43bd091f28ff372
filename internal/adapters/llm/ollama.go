// Package llm implements secondary.LLMProvider against Ollama and
// OpenAI-compatible chat endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/dialectica/internal/ports/secondary"
)

var tracer = otel.Tracer("dialectica.llm")

// OllamaProvider calls Ollama's non-streaming generate endpoint.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaProvider creates a provider for model served at baseURL.
func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
}

// Name implements secondary.LLMProvider.
func (o *OllamaProvider) Name() string {
	return "ollama/" + o.model
}

// Generate implements secondary.LLMProvider.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, params secondary.GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaProvider.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	options := map[string]any{"temperature": params.Temperature}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", o.fail(span, fmt.Errorf("failed to marshal ollama request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", o.fail(span, fmt.Errorf("failed to create ollama request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", o.fail(span, fmt.Errorf("ollama call failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", o.fail(span, fmt.Errorf("failed to read ollama response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && strings.Contains(errResp.Error, "not found") {
			return "", o.fail(span, fmt.Errorf("model %q not found, run 'ollama pull %s'", o.model, o.model))
		}
		return "", o.fail(span, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", o.fail(span, fmt.Errorf("failed to parse ollama response: %w", err))
	}
	slog.DebugContext(ctx, "ollama generation complete", "model", o.model, "chars", len(out.Response))
	return out.Response, nil
}

func (o *OllamaProvider) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%w: %w", secondary.ErrProvider, err)
}
