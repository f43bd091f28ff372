package llm

import (
	"fmt"
	"os"

	"github.com/example/dialectica/internal/config"
	"github.com/example/dialectica/internal/ports/secondary"
)

// New builds the provider selected by cfg.
func New(cfg config.LLMConfig) (secondary.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Timeout.Std()), nil
	case "openai":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("openai provider requires $%s to be set", cfg.APIKeyEnv)
		}
		return NewOpenAIProvider(key, cfg.BaseURL, cfg.Model), nil
	case "disabled":
		return DisabledProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
