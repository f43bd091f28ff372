package llm

import (
	"context"
	"fmt"

	"github.com/example/dialectica/internal/ports/secondary"
)

// DisabledProvider fails every call, so every LLM-backed decision takes
// its deterministic fallback.
type DisabledProvider struct{}

// Name implements secondary.LLMProvider.
func (DisabledProvider) Name() string { return "disabled" }

// Generate implements secondary.LLMProvider.
func (DisabledProvider) Generate(context.Context, string, secondary.GenerationParams) (string, error) {
	return "", fmt.Errorf("%w: llm provider is disabled", secondary.ErrProvider)
}
