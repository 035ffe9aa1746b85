package config

import "time"

// ProviderType identifies a generation or embedding provider.
type ProviderType = string

const (
	ProviderOpenAI           ProviderType = "openai"
	ProviderOpenRouter       ProviderType = "openrouter"
	ProviderOllama           ProviderType = "ollama"
	ProviderOpenAICompatible ProviderType = "openai-compatible"
)

// Config is the top-level lanne configuration, corresponding to .lanne.yml.
type Config struct {
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Log        LogConfig        `yaml:"log" koanf:"log"`
	LLM        LLMConfig        `yaml:"llm" koanf:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding" koanf:"embedding"`
	Intent     IntentConfig     `yaml:"intent" koanf:"intent"`
	Planner    PlannerConfig    `yaml:"planner" koanf:"planner"`
	Agent      AgentConfig      `yaml:"agent" koanf:"agent"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" koanf:"retrieval"`
	WebSearch  WebSearchConfig  `yaml:"web_search" koanf:"web_search"`
	Generation GenerationConfig `yaml:"generation" koanf:"generation"`
	Memory     MemoryConfig     `yaml:"memory" koanf:"memory"`
	Store      StoreConfig      `yaml:"store" koanf:"store"`
	Auth       AuthConfig       `yaml:"auth" koanf:"auth"`
	Ingest     IngestConfig     `yaml:"ingest" koanf:"ingest"`
	Tracing    TracingConfig    `yaml:"tracing" koanf:"tracing"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" koanf:"port"`
	AllowAll       bool     `yaml:"allow_all_origins" koanf:"allow_all_origins"`
	AllowedOrigins []string `yaml:"allowed_origins" koanf:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// LLMConfig selects the generation model. API keys are read from the
// environment, never from the file.
type LLMConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	BaseURL           string       `yaml:"base_url" koanf:"base_url"`
	Temperature       float64      `yaml:"temperature" koanf:"temperature"`
	MaxTokens         int          `yaml:"max_tokens" koanf:"max_tokens"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

type EmbeddingConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	Dimensions int          `yaml:"dimensions" koanf:"dimensions"`
	BaseURL    string       `yaml:"base_url" koanf:"base_url"`
}

type IntentConfig struct {
	CasualMaxWords int `yaml:"casual_max_words" koanf:"casual_max_words"`
}

type PlannerConfig struct {
	// Model overrides llm.model for planning calls when set.
	Model    string        `yaml:"model" koanf:"model"`
	Timeout  time.Duration `yaml:"timeout" koanf:"timeout"`
	Evaluate bool          `yaml:"evaluate" koanf:"evaluate"`
}

type AgentConfig struct {
	Enabled        bool          `yaml:"enabled" koanf:"enabled"`
	URL            string        `yaml:"url" koanf:"url"`
	Timeout        time.Duration `yaml:"timeout" koanf:"timeout"`
	MaxCommands    int           `yaml:"max_commands" koanf:"max_commands"`
	MaxOutputChars int           `yaml:"max_output_chars" koanf:"max_output_chars"`
}

type RetrievalConfig struct {
	Backend             string              `yaml:"backend" koanf:"backend"`
	IndexDir            string              `yaml:"index_dir" koanf:"index_dir"`
	TopK                int                 `yaml:"top_k" koanf:"top_k"`
	SimilarityThreshold float64             `yaml:"similarity_threshold" koanf:"similarity_threshold"`
	MaxChars            int                 `yaml:"max_chars" koanf:"max_chars"`
	Timeout             time.Duration       `yaml:"timeout" koanf:"timeout"`
	Elasticsearch       ElasticsearchConfig `yaml:"elasticsearch" koanf:"elasticsearch"`
}

type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses" koanf:"addresses"`
	Username  string   `yaml:"username" koanf:"username"`
	Password  string   `yaml:"password" koanf:"password"`
	Index     string   `yaml:"index" koanf:"index"`
}

type WebSearchConfig struct {
	Enabled    bool          `yaml:"enabled" koanf:"enabled"`
	BaseURL    string        `yaml:"base_url" koanf:"base_url"`
	Timeout    time.Duration `yaml:"timeout" koanf:"timeout"`
	MaxResults int           `yaml:"max_results" koanf:"max_results"`
}

type GenerationConfig struct {
	MaxContextChars int           `yaml:"max_context_chars" koanf:"max_context_chars"`
	Retries         int           `yaml:"retries" koanf:"retries"`
	Backoff         time.Duration `yaml:"backoff" koanf:"backoff"`
	Timeout         time.Duration `yaml:"timeout" koanf:"timeout"`
	MinAnswerChars  int           `yaml:"min_answer_chars" koanf:"min_answer_chars"`
}

type MemoryConfig struct {
	WindowSize      int           `yaml:"window_size" koanf:"window_size"`
	Summarizer      string        `yaml:"summarizer" koanf:"summarizer"`
	MaxSummaryChars int           `yaml:"max_summary_chars" koanf:"max_summary_chars"`
	Locker          string        `yaml:"locker" koanf:"locker"`
	LockTTL         time.Duration `yaml:"lock_ttl" koanf:"lock_ttl"`
	LockTimeout     time.Duration `yaml:"lock_timeout" koanf:"lock_timeout"`
	Redis           RedisConfig   `yaml:"redis" koanf:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" koanf:"addr"`
	Password  string `yaml:"password" koanf:"password"`
	DB        int    `yaml:"db" koanf:"db"`
	KeyPrefix string `yaml:"key_prefix" koanf:"key_prefix"`
}

type StoreConfig struct {
	Path    string        `yaml:"path" koanf:"path"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

// AuthConfig controls bearer-token verification. The signing secret comes
// from LANNE_AUTH_SECRET. Admins are the user ids allowed on /api/admin.
type AuthConfig struct {
	Enabled  bool          `yaml:"enabled" koanf:"enabled"`
	Issuer   string        `yaml:"issuer" koanf:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl" koanf:"token_ttl"`
	Admins   []string      `yaml:"admins" koanf:"admins"`
}

// TracingConfig exports pipeline spans over OTLP/HTTP when enabled.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" koanf:"enabled"`
	Endpoint    string  `yaml:"endpoint" koanf:"endpoint"` // host:port of the collector
	Insecure    bool    `yaml:"insecure" koanf:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" koanf:"sample_ratio"`
}

type IngestConfig struct {
	Include   []string `yaml:"include" koanf:"include"`
	Exclude   []string `yaml:"exclude" koanf:"exclude"`
	ChunkSize int      `yaml:"chunk_size" koanf:"chunk_size"`
}
