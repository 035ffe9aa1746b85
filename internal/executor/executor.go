// Package executor consults the information sources selected by a plan
// concurrently and gathers whatever they return into a Context.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/plan"
	"github.com/ziadkadry99/lanne/internal/retrieval"
	"github.com/ziadkadry99/lanne/internal/websearch"
)

// Citation names reported to clients, in citation order.
const (
	SourceAgent         = "linux-agent"
	SourceKnowledgeBase = "knowledge-base"
	SourceWeb           = "web-search"
)

// Outcome of one source call, as reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

const (
	defaultAgentTimeout     = 4 * time.Second
	defaultWebTimeout       = 4 * time.Second
	defaultRetrievalTimeout = 800 * time.Millisecond
	defaultTopK             = 3
	defaultThreshold        = 0.5
	defaultMaxChars         = 500
)

// Context is the data gathered for one request. An empty field means the
// source was not consulted, failed, or returned nothing usable.
type Context struct {
	AgentData      string   `json:"agent_data,omitempty"`
	RetrievalData  string   `json:"rag_data,omitempty"`
	RetrievalScore float64  `json:"rag_similarity"`
	WebData        string   `json:"web_data,omitempty"`
	Sources        []string `json:"sources"`
}

// HasData reports whether any source contributed text.
func (c *Context) HasData() bool {
	return c != nil && (c.AgentData != "" || c.RetrievalData != "" || c.WebData != "")
}

func (c *Context) cite() {
	c.Sources = c.Sources[:0]
	if c.AgentData != "" {
		c.Sources = append(c.Sources, SourceAgent)
	}
	if c.RetrievalData != "" {
		c.Sources = append(c.Sources, SourceKnowledgeBase)
	}
	if c.WebData != "" {
		c.Sources = append(c.Sources, SourceWeb)
	}
}

// AgentRunner runs catalogue commands on the remote agent.
type AgentRunner interface {
	Execute(ctx context.Context, commands []string) (string, error)
}

// WebSearcher searches the web.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// Options configures an Executor. A nil collaborator disables its source.
type Options struct {
	Agent     AgentRunner
	Retriever retrieval.Retriever
	Web       WebSearcher

	AgentTimeout     time.Duration
	RetrievalTimeout time.Duration
	WebTimeout       time.Duration

	TopK int
	// Threshold is the minimum similarity in (0,1]; zero selects 0.5.
	Threshold float64
	MaxChars  int

	// Observer, when set, is told the outcome and latency of every source call.
	Observer func(source, outcome string, elapsed time.Duration)
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Executor fans a plan out to its sources.
type Executor struct {
	agent     AgentRunner
	retriever retrieval.Retriever
	web       WebSearcher

	agentTimeout     time.Duration
	retrievalTimeout time.Duration
	webTimeout       time.Duration

	topK      int
	threshold float64
	maxChars  int

	observe func(source, outcome string, elapsed time.Duration)
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New creates an Executor.
func New(opts Options) *Executor {
	e := &Executor{
		agent:            opts.Agent,
		retriever:        opts.Retriever,
		web:              opts.Web,
		agentTimeout:     orDefault(opts.AgentTimeout, defaultAgentTimeout),
		retrievalTimeout: orDefault(opts.RetrievalTimeout, defaultRetrievalTimeout),
		webTimeout:       orDefault(opts.WebTimeout, defaultWebTimeout),
		topK:             opts.TopK,
		threshold:        opts.Threshold,
		maxChars:         opts.MaxChars,
		observe:          opts.Observer,
		tracer:           opts.Tracer,
		logger:           logging.OrNop(opts.Logger).Named("executor"),
	}
	if e.topK <= 0 {
		e.topK = defaultTopK
	}
	if e.threshold <= 0 {
		e.threshold = defaultThreshold
	}
	if e.maxChars <= 0 {
		e.maxChars = defaultMaxChars
	}
	if e.observe == nil {
		e.observe = func(string, string, time.Duration) {}
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("")
	}
	return e
}

// WebEnabled reports whether a web search client is configured.
func (e *Executor) WebEnabled() bool { return e.web != nil }

// Execute consults every source the plan enables, concurrently. A source
// that fails or times out is left absent; Execute itself never fails.
// Citations are listed in the order agent, knowledge base, web.
func (e *Executor) Execute(ctx context.Context, p plan.Plan, text string) *Context {
	return e.run(ctx, &Context{},
		p.UseAgent && len(p.AgentCommands) > 0, p.AgentCommands,
		p.UseRetrieval,
		p.UseWebSearch,
		text)
}

// Supplement fetches knowledge-base and web data that c is still missing.
// Sources already present are left untouched.
func (e *Executor) Supplement(ctx context.Context, c *Context, needRetrieval, needWeb bool, text string) *Context {
	return e.run(ctx, c, false, nil, needRetrieval && c.RetrievalData == "", needWeb && c.WebData == "", text)
}

func (e *Executor) run(ctx context.Context, c *Context, useAgent bool, commands []string, useRetrieval, useWeb bool, text string) *Context {
	useAgent = useAgent && e.agent != nil
	useRetrieval = useRetrieval && e.retriever != nil
	useWeb = useWeb && e.web != nil
	if !useAgent && !useRetrieval && !useWeb {
		c.cite()
		return c
	}

	var (
		g            errgroup.Group
		agentData    string
		ragData      string
		ragScore     float64
		webData      string
		ragConsulted bool
	)
	if useAgent {
		g.Go(func() error {
			agentData = e.fetchAgent(ctx, commands)
			return nil
		})
	}
	if useRetrieval {
		ragConsulted = true
		g.Go(func() error {
			ragData, ragScore = e.fetchRetrieval(ctx, text)
			return nil
		})
	}
	if useWeb {
		g.Go(func() error {
			webData = e.fetchWeb(ctx, text)
			return nil
		})
	}
	_ = g.Wait()

	if agentData != "" {
		c.AgentData = agentData
	}
	if ragConsulted {
		c.RetrievalScore = ragScore
		if ragData != "" {
			c.RetrievalData = ragData
		}
	}
	if webData != "" {
		c.WebData = webData
	}
	c.cite()

	e.logger.Debug("sources consulted",
		zap.Bool("agent", c.AgentData != ""),
		zap.Bool("rag", c.RetrievalData != ""),
		zap.Float64("rag_score", c.RetrievalScore),
		zap.Bool("web", c.WebData != ""))
	return c
}

func (e *Executor) fetchAgent(ctx context.Context, commands []string) string {
	ctx, span := e.tracer.Start(ctx, "source.agent", trace.WithAttributes(attribute.StringSlice("commands", commands)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.agentTimeout)
	defer cancel()

	start := time.Now()
	out, err := e.agent.Execute(ctx, commands)
	if err != nil {
		e.fail(span, SourceAgent, start, err)
		return ""
	}
	e.succeed(span, SourceAgent, start, out != "")
	return out
}

func (e *Executor) fetchRetrieval(ctx context.Context, text string) (string, float64) {
	ctx, span := e.tracer.Start(ctx, "source.retrieval")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.retrievalTimeout)
	defer cancel()

	start := time.Now()
	hits, err := e.retriever.Search(ctx, text, e.topK)
	if err != nil {
		e.fail(span, SourceKnowledgeBase, start, err)
		return "", 0
	}

	var top float64
	if len(hits) > 0 {
		top = hits[0].Score
	}
	span.SetAttributes(attribute.Float64("top_score", top))
	if top < e.threshold {
		e.succeed(span, SourceKnowledgeBase, start, false)
		return "", top
	}

	var parts []string
	for _, h := range hits {
		if h.Score < e.threshold {
			continue
		}
		parts = append(parts, truncate(h.Text, e.maxChars))
	}
	e.succeed(span, SourceKnowledgeBase, start, true)
	return strings.Join(parts, "\n\n"), top
}

func (e *Executor) fetchWeb(ctx context.Context, text string) string {
	ctx, span := e.tracer.Start(ctx, "source.web")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.webTimeout)
	defer cancel()

	start := time.Now()
	results, err := e.web.Search(ctx, text)
	if err != nil {
		e.fail(span, SourceWeb, start, err)
		return ""
	}
	e.succeed(span, SourceWeb, start, len(results) > 0)
	return websearch.Format(results)
}

func (e *Executor) succeed(span trace.Span, source string, start time.Time, found bool) {
	outcome := OutcomeOK
	if !found {
		outcome = OutcomeEmpty
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	e.observe(source, outcome, time.Since(start))
}

func (e *Executor) fail(span trace.Span, source string, start time.Time, err error) {
	outcome := OutcomeError
	if errors.Is(err, context.DeadlineExceeded) {
		outcome = OutcomeTimeout
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	e.observe(source, outcome, time.Since(start))
	e.logger.Warn("source failed", zap.String("source", source), zap.String("outcome", outcome), zap.Error(err))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
