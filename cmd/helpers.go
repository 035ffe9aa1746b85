package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/agent"
	"github.com/ziadkadry99/lanne/internal/config"
	"github.com/ziadkadry99/lanne/internal/conversation"
	"github.com/ziadkadry99/lanne/internal/db"
	"github.com/ziadkadry99/lanne/internal/embeddings"
	"github.com/ziadkadry99/lanne/internal/executor"
	"github.com/ziadkadry99/lanne/internal/intent"
	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/memory"
	"github.com/ziadkadry99/lanne/internal/metrics"
	"github.com/ziadkadry99/lanne/internal/orchestrator"
	"github.com/ziadkadry99/lanne/internal/plan"
	"github.com/ziadkadry99/lanne/internal/render"
	"github.com/ziadkadry99/lanne/internal/respond"
	"github.com/ziadkadry99/lanne/internal/retrieval"
	"github.com/ziadkadry99/lanne/internal/vectordb"
	"github.com/ziadkadry99/lanne/internal/websearch"
)

const (
	agentTokenEnvVar = "LANNE_AGENT_TOKEN"
	authSecretEnvVar = "LANNE_AUTH_SECRET"
	tavilyKeyEnvVar  = "TAVILY_API_KEY"
	tracerName       = "github.com/ziadkadry99/lanne"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `lanne init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// createLLMProviderFromConfig creates the generation provider, rate limited
// when llm.requests_per_minute is set.
func createLLMProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	p, err := llm.NewProvider(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		p = llm.NewRateLimitedProvider(p, cfg.LLM.RequestsPerMinute)
	}
	return p, nil
}

func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	e := cfg.Embedding
	return embeddings.New(e.Provider, e.Model, e.Dimensions, e.BaseURL)
}

// openKnowledge opens the knowledge-base store for the configured backend.
func openKnowledge(ctx context.Context, cfg *config.Config, logger *zap.Logger) (vectordb.VectorStore, error) {
	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return retrieval.OpenStore(ctx, cfg.Retrieval, embedder, logger)
}

// app is the fully wired assistant.
type app struct {
	db            *db.DB
	conversations *conversation.Store
	knowledge     vectordb.VectorStore
	agent         *agent.Client
	orchestrator  *orchestrator.Orchestrator
	registry      *prometheus.Registry
	redis         *redis.Client
	logger        *zap.Logger
	stopTracing   func(context.Context) error
}

// buildApp wires every pipeline component from cfg. Optional sources that
// cannot be set up are left out with a warning; the pipeline answers
// without them.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	database, err := db.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.db = database
	a.conversations = conversation.NewStore(database)

	provider, err := createLLMProviderFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)
	tracer, stopTracing, err := newTracer(ctx, cfg.Tracing)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.stopTracing = stopTracing
	if cfg.Tracing.Enabled {
		logger.Info("exporting traces", zap.String("endpoint", cfg.Tracing.Endpoint))
	}

	a.agent = agent.NewClient(agent.Options{
		URL:            cfg.Agent.URL,
		Enabled:        cfg.Agent.Enabled,
		Token:          os.Getenv(agentTokenEnvVar),
		MaxCommands:    cfg.Agent.MaxCommands,
		MaxOutputChars: cfg.Agent.MaxOutputChars,
		Logger:         logger,
	})

	execOpts := executor.Options{
		Agent:            a.agent,
		AgentTimeout:     cfg.Agent.Timeout,
		RetrievalTimeout: cfg.Retrieval.Timeout,
		WebTimeout:       cfg.WebSearch.Timeout,
		TopK:             cfg.Retrieval.TopK,
		Threshold:        cfg.Retrieval.SimilarityThreshold,
		MaxChars:         cfg.Retrieval.MaxChars,
		Observer:         m.ObserveSource,
		Tracer:           tracer,
		Logger:           logger,
	}

	if knowledge, err := openKnowledge(ctx, cfg, logger); err != nil {
		logger.Warn("knowledge base unavailable, answering without it", zap.Error(err))
	} else {
		a.knowledge = knowledge
		execOpts.Retriever = retrieval.NewIndex(knowledge, logger)
	}

	switch key := os.Getenv(tavilyKeyEnvVar); {
	case !cfg.WebSearch.Enabled:
		logger.Info("web search disabled by config")
	case key == "":
		logger.Warn("web search disabled, " + tavilyKeyEnvVar + " not set")
	default:
		execOpts.Web = websearch.NewClient(websearch.Options{
			BaseURL:    cfg.WebSearch.BaseURL,
			APIKey:     key,
			MaxResults: cfg.WebSearch.MaxResults,
			Logger:     logger,
		})
	}

	history, err := a.buildMemory(ctx, cfg, provider)
	if err != nil {
		a.Close()
		return nil, err
	}

	plannerModel := cfg.Planner.Model
	if plannerModel == "" {
		plannerModel = cfg.LLM.Model
	}
	var evaluator *executor.Evaluator
	if cfg.Planner.Evaluate {
		evaluator = executor.NewEvaluator(provider, executor.EvaluatorOptions{
			Model:   plannerModel,
			Timeout: cfg.Planner.Timeout,
			Logger:  logger,
		})
	}

	a.orchestrator = orchestrator.New(orchestrator.Options{
		Classifier: intent.NewClassifier(cfg.Intent.CasualMaxWords, logger),
		Planner: plan.NewBuilder(provider, plan.Options{
			Model:          plannerModel,
			Timeout:        cfg.Planner.Timeout,
			MaxCommands:    cfg.Agent.MaxCommands,
			AgentAvailable: a.agent.Enabled,
			Logger:         logger,
		}),
		Executor:  executor.New(execOpts),
		Evaluator: evaluator,
		Generator: respond.NewGenerator(provider, respond.Options{
			Model:           cfg.LLM.Model,
			Temperature:     cfg.LLM.Temperature,
			MaxTokens:       cfg.LLM.MaxTokens,
			MaxContextChars: cfg.Generation.MaxContextChars,
			Retries:         cfg.Generation.Retries,
			Backoff:         cfg.Generation.Backoff,
			Timeout:         cfg.Generation.Timeout,
			MinAnswerChars:  cfg.Generation.MinAnswerChars,
			Logger:          logger,
		}),
		History:       history,
		Conversations: a.conversations,
		Renderer:      render.New(""),
		Metrics:       m,
		StoreTimeout:  cfg.Store.Timeout,
		Tracer:        tracer,
		Logger:        logger,
	})
	return a, nil
}

func (a *app) buildMemory(ctx context.Context, cfg *config.Config, provider llm.Provider) (*memory.Memory, error) {
	mc := cfg.Memory
	opts := memory.Options{
		WindowSize:  mc.WindowSize,
		LockTimeout: mc.LockTimeout,
		Summarizer:  memory.ConcatSummarizer{MaxChars: mc.MaxSummaryChars},
		Logger:      a.logger,
	}
	if mc.Summarizer == "llm" {
		opts.Summarizer = memory.NewLLMSummarizer(provider, cfg.LLM.Model, mc.MaxSummaryChars, a.logger)
	}

	if mc.Locker == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     mc.Redis.Addr,
			Password: mc.Redis.Password,
			DB:       mc.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", mc.Redis.Addr, err)
		}
		opts.Locker = memory.NewRedisLocker(a.redis, mc.Redis.KeyPrefix, mc.LockTTL)
		a.logger.Info("conversation locks in redis", zap.String("addr", mc.Redis.Addr))
	}

	return memory.New(a.conversations, opts), nil
}

// Close releases the database and the redis connection.
func (a *app) Close() {
	if a.stopTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.stopTracing(ctx); err != nil {
			a.logger.Warn("flushing traces failed", zap.Error(err))
		}
		cancel()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}
