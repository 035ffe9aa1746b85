package embeddings

import (
	"context"
	"fmt"
	"os"
)

// Embedder turns text into vectors for the knowledge base.
type Embedder interface {
	// Embed generates embeddings for one or more texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// New creates an embedder by provider name. dimensions is only consulted for
// ollama, where it cannot be derived from the model name.
func New(provider, model string, dimensions int, baseURL string) (Embedder, error) {
	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		if model == "" {
			model = string(ModelTextEmbedding3Small)
		}
		return NewOpenAIEmbedder(apiKey, OpenAIModel(model), baseURL), nil
	case "ollama":
		if model == "" {
			model = "nomic-embed-text"
		}
		if dimensions <= 0 {
			dimensions = 768
		}
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaEmbedder(model, dimensions, baseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
