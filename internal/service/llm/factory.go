// Package llm wires concrete provider adapters behind the domain ChatModel
// interface.
package llm

import (
	"fmt"

	"parley/internal/config"
	domainllm "parley/internal/domain/services/llm"
	"parley/internal/service/llm/providers/anthropic"
	"parley/internal/service/llm/providers/lorem"
)

// ProviderFactory creates LLM provider instances from configuration.
type ProviderFactory struct {
	config *config.Config
}

// NewProviderFactory creates a new provider factory.
func NewProviderFactory(cfg *config.Config) *ProviderFactory {
	return &ProviderFactory{
		config: cfg,
	}
}

// GetProvider returns a provider instance for the given provider name.
//
// Supported providers:
//   - "anthropic" - Claude models via Anthropic API
//   - "lorem" - Mock provider for development (no API key required)
func (f *ProviderFactory) GetProvider(providerName string) (domainllm.ChatModel, error) {
	switch providerName {
	case "anthropic":
		return f.createAnthropicProvider()

	case "lorem":
		return lorem.NewProvider(), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}

// ProviderForModel picks a provider by model name prefix. Used when the
// configured default model implies the provider.
func (f *ProviderFactory) ProviderForModel(model string) (domainllm.ChatModel, error) {
	candidates := []string{"anthropic", "lorem"}
	for _, name := range candidates {
		provider, err := f.GetProvider(name)
		if err != nil {
			continue
		}
		if provider.SupportsModel(model) {
			return provider, nil
		}
	}
	return nil, fmt.Errorf("no provider supports model: %s", model)
}

func (f *ProviderFactory) createAnthropicProvider() (domainllm.ChatModel, error) {
	if f.config.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	provider, err := anthropic.NewProvider(f.config.AnthropicAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}

	return provider, nil
}
