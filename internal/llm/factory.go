package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a generation provider by type. baseURL overrides the
// provider's default endpoint when non-empty.
// Supported provider types: "openai", "openrouter", "ollama", "openai-compatible".
func NewProvider(providerType, model, baseURL string) (Provider, error) {
	switch providerType {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		if baseURL != "" {
			return NewOpenAICompatibleProvider("openai", apiKey, baseURL, model), nil
		}
		return NewOpenAIProvider(apiKey, model), nil

	case "openrouter":
		apiKey := os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable is not set")
		}
		return NewOpenRouterProvider(apiKey, model), nil

	case "openai-compatible":
		if baseURL == "" {
			return nil, fmt.Errorf("openai-compatible provider requires a base_url")
		}
		// Local servers usually ignore the key.
		return NewOpenAICompatibleProvider("openai-compatible", os.Getenv("OPENAI_API_KEY"), baseURL, model), nil

	case "ollama":
		host := baseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(host, model), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
