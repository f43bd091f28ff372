package secondary

import (
	"context"
	"errors"
)

// ErrProvider is wrapped by provider adapters when a call fails.
var ErrProvider = errors.New("provider call failed")

// LLMProvider defines the secondary port for text generation.
type LLMProvider interface {
	// Generate returns the completion for prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Name identifies the provider and model for logs.
	Name() string
}

// GenerationParams tunes a single generation.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}

// ToolProvider defines the secondary port for the research tools.
type ToolProvider interface {
	// Manifest lists the tools the provider serves.
	Manifest(ctx context.Context) ([]ToolDescriptor, error)

	// Execute runs tool with query and returns the raw result payload.
	Execute(ctx context.Context, tool, query string) (*ToolOutput, error)
}

// ToolDescriptor describes one tool in a manifest.
type ToolDescriptor struct {
	Name        string
	Description string
}

// ToolOutput is a tool's raw JSON result.
type ToolOutput struct {
	Tool    string
	Payload []byte
}
