package config

import "time"

// ProviderPreset describes the models suggested for a provider.
type ProviderPreset struct {
	Model             string
	EmbeddingProvider ProviderType
	EmbeddingModel    string
	Dimensions        int
}

var providerPresets = map[ProviderType]ProviderPreset{
	ProviderOllama: {
		Model:             "qwen2.5:7b-instruct",
		EmbeddingProvider: ProviderOllama,
		EmbeddingModel:    "nomic-embed-text",
		Dimensions:        768,
	},
	ProviderOpenAI: {
		Model:             "gpt-4o-mini",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Dimensions:        1536,
	},
	ProviderOpenRouter: {
		Model:             "qwen/qwen-2.5-7b-instruct",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Dimensions:        1536,
	},
	ProviderOpenAICompatible: {
		Model:             "Qwen/Qwen2.5-7B-Instruct",
		EmbeddingProvider: ProviderOllama,
		EmbeddingModel:    "nomic-embed-text",
		Dimensions:        768,
	},
}

// DefaultExcludes are glob patterns skipped during ingestion by default.
var DefaultExcludes = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	".lanne/**",
}

// DefaultConfig returns a Config with sensible defaults for a local,
// single-replica deployment.
func DefaultConfig() *Config {
	preset := providerPresets[ProviderOllama]
	return &Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "console"},
		LLM: LLMConfig{
			Provider:    ProviderOllama,
			Model:       preset.Model,
			Temperature: 0.3,
			MaxTokens:   1024,
		},
		Embedding: EmbeddingConfig{
			Provider:   preset.EmbeddingProvider,
			Model:      preset.EmbeddingModel,
			Dimensions: preset.Dimensions,
		},
		Intent:  IntentConfig{CasualMaxWords: 3},
		Planner: PlannerConfig{Timeout: 5 * time.Second, Evaluate: true},
		Agent: AgentConfig{
			URL:            "http://localhost:8090",
			Timeout:        4 * time.Second,
			MaxCommands:    3,
			MaxOutputChars: 2500,
		},
		Retrieval: RetrievalConfig{
			Backend:             "chromem",
			IndexDir:            ".lanne/index",
			TopK:                3,
			SimilarityThreshold: 0.5,
			MaxChars:            500,
			Timeout:             800 * time.Millisecond,
			Elasticsearch: ElasticsearchConfig{
				Addresses: []string{"http://localhost:9200"},
				Index:     "lanne-knowledge",
			},
		},
		WebSearch: WebSearchConfig{
			Enabled:    true,
			BaseURL:    "https://api.tavily.com",
			Timeout:    4 * time.Second,
			MaxResults: 3,
		},
		Generation: GenerationConfig{
			MaxContextChars: 3000,
			Retries:         1,
			Backoff:         200 * time.Millisecond,
			Timeout:         60 * time.Second,
			MinAnswerChars:  20,
		},
		Memory: MemoryConfig{
			WindowSize:      6,
			Summarizer:      "concat",
			MaxSummaryChars: 4000,
			Locker:          "local",
			LockTTL:         30 * time.Second,
			LockTimeout:     5 * time.Second,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "lanne:lock:",
			},
		},
		Store: StoreConfig{Path: ".lanne/lanne.db", Timeout: 5 * time.Second},
		Auth:  AuthConfig{Issuer: "lanne", TokenTTL: 24 * time.Hour},
		Ingest: IngestConfig{
			Include:   []string{"**/*.md", "**/*.txt"},
			Exclude:   DefaultExcludes,
			ChunkSize: 512,
		},
		Tracing: TracingConfig{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1},
	}
}

// GetPreset returns the preset for the given provider, falling back to the
// ollama preset.
func GetPreset(provider ProviderType) ProviderPreset {
	if p, ok := providerPresets[provider]; ok {
		return p
	}
	return providerPresets[ProviderOllama]
}
