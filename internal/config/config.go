package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = ".lanne.yml"

const envPrefix = "LANNE_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. A double underscore separates nesting
// levels: LANNE_LLM__MODEL sets llm.model.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var generationProviders = []interface{}{
	ProviderOpenAI, ProviderOpenRouter, ProviderOllama, ProviderOpenAICompatible,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Log),
		validation.Field(&c.LLM),
		validation.Field(&c.Embedding),
		validation.Field(&c.Intent),
		validation.Field(&c.Planner),
		validation.Field(&c.Agent),
		validation.Field(&c.Retrieval),
		validation.Field(&c.WebSearch),
		validation.Field(&c.Generation),
		validation.Field(&c.Memory),
		validation.Field(&c.Store),
		validation.Field(&c.Auth),
		validation.Field(&c.Ingest),
		validation.Field(&c.Tracing),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Min(0), validation.Max(65535)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("json", "console")),
	)
}

func (l LLMConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Provider, validation.Required, validation.In(generationProviders...)),
		validation.Field(&l.Model, validation.Required),
		validation.Field(&l.BaseURL,
			validation.When(l.Provider == ProviderOpenAICompatible, validation.Required),
			is.RequestURL),
		validation.Field(&l.Temperature, validation.Min(0.0).Exclusive(), validation.Max(2.0)),
		validation.Field(&l.MaxTokens, validation.Min(0)),
		validation.Field(&l.RequestsPerMinute, validation.Min(0)),
	)
}

func (e EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Provider, validation.Required, validation.In(ProviderOpenAI, ProviderOllama)),
		validation.Field(&e.Dimensions, validation.Min(0)),
		validation.Field(&e.BaseURL, is.RequestURL),
	)
}

func (i IntentConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.CasualMaxWords, validation.Min(0)),
	)
}

func (p PlannerConfig) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

func (a AgentConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.URL, validation.When(a.Enabled, validation.Required), is.RequestURL),
		validation.Field(&a.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&a.MaxCommands, validation.Min(1)),
		validation.Field(&a.MaxOutputChars, validation.Min(1)),
	)
}

func (r RetrievalConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Backend, validation.Required, validation.In("chromem", "elasticsearch")),
		validation.Field(&r.IndexDir, validation.When(r.Backend == "chromem", validation.Required)),
		validation.Field(&r.TopK, validation.Min(1)),
		validation.Field(&r.SimilarityThreshold, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&r.MaxChars, validation.Min(1)),
		validation.Field(&r.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&r.Elasticsearch, validation.When(r.Backend == "elasticsearch", validation.By(requireAddresses))),
	)
}

func (e ElasticsearchConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Addresses, validation.Each(is.RequestURL)),
	)
}

func requireAddresses(v interface{}) error {
	if es, ok := v.(ElasticsearchConfig); ok && len(es.Addresses) == 0 {
		return validation.NewError("validation_es_addresses", "at least one address is required")
	}
	return nil
}

func (w WebSearchConfig) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.BaseURL, validation.When(w.Enabled, validation.Required), is.RequestURL),
		validation.Field(&w.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&w.MaxResults, validation.Min(1)),
	)
}

func (g GenerationConfig) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.MaxContextChars, validation.Min(1)),
		validation.Field(&g.Retries, validation.Min(0)),
		validation.Field(&g.Backoff, validation.Min(time.Duration(0))),
		validation.Field(&g.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&g.MinAnswerChars, validation.Min(0)),
	)
}

func (m MemoryConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.WindowSize, validation.Required, validation.Min(1)),
		validation.Field(&m.Summarizer, validation.Required, validation.In("concat", "llm")),
		validation.Field(&m.MaxSummaryChars, validation.Min(1)),
		validation.Field(&m.Locker, validation.Required, validation.In("local", "redis")),
		validation.Field(&m.LockTTL, validation.When(m.Locker == "redis", validation.Required)),
		validation.Field(&m.LockTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&m.Redis, validation.When(m.Locker == "redis", validation.By(requireRedisAddr))),
	)
}

func requireRedisAddr(v interface{}) error {
	if r, ok := v.(RedisConfig); ok && r.Addr == "" {
		return validation.NewError("validation_redis_addr", "addr is required")
	}
	return nil
}

func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Path, validation.Required),
		validation.Field(&s.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.TokenTTL, validation.When(a.Enabled, validation.Required)),
	)
}

func (t TracingConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Endpoint, validation.When(t.Enabled, validation.Required)),
		validation.Field(&t.SampleRatio, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (i IngestConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Include, validation.Required),
		validation.Field(&i.ChunkSize, validation.Min(64)),
	)
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		return "OPENAI_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}
