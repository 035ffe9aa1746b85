// Package respond produces the final answer from the collected context and
// conversation history.
package respond

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/memory"
	"github.com/ziadkadry99/lanne/internal/plan"
)

// Answers used when the model cannot produce a usable reply.
const (
	ApologyAnswer    = "Desculpe, tive um problema ao processar sua pergunta. Pode tentar novamente?"
	InadequateAnswer = "Desculpe, nao consegui gerar uma resposta adequada. Pode reformular?"
)

// Fallback reasons.
const (
	FallbackError = "error"
	FallbackShort = "short_answer"
)

const (
	defaultMaxContextChars = 3000
	defaultBackoff         = 200 * time.Millisecond
	defaultTimeout         = 60 * time.Second
	defaultMinAnswerChars  = 20
	defaultMaxTokens       = 1024
	defaultTemperature     = 0.3
)

// Request is everything the generator needs for one answer.
type Request struct {
	Query   string
	Style   plan.Style
	Context string
	History memory.State
}

// Result is a generated answer. Fallback is set when Answer is one of the
// canned replies rather than model output.
type Result struct {
	Answer         string `json:"answer"`
	Fallback       bool   `json:"fallback"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Attempts       int    `json:"attempts"`
}

// Options configures a Generator. Retries is the number of extra attempts
// after the first failure; a negative value disables retrying.
type Options struct {
	Model string
	// Temperature zero selects 0.3.
	Temperature     float64
	MaxTokens       int
	MaxContextChars int
	Retries         int
	Backoff         time.Duration
	Timeout         time.Duration
	MinAnswerChars  int
	Logger          *zap.Logger
}

// Generator calls the generation model with retries and cleans its output.
type Generator struct {
	provider        llm.Provider
	model           string
	temperature     float64
	maxTokens       int
	maxContextChars int
	retries         int
	backoff         time.Duration
	timeout         time.Duration
	minAnswerChars  int
	logger          *zap.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, opts Options) *Generator {
	g := &Generator{
		provider:        provider,
		model:           opts.Model,
		temperature:     opts.Temperature,
		maxTokens:       opts.MaxTokens,
		maxContextChars: opts.MaxContextChars,
		retries:         max(opts.Retries, 0),
		backoff:         opts.Backoff,
		timeout:         opts.Timeout,
		minAnswerChars:  opts.MinAnswerChars,
		logger:          logging.OrNop(opts.Logger).Named("respond"),
	}
	if g.temperature <= 0 {
		g.temperature = defaultTemperature
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if g.maxContextChars <= 0 {
		g.maxContextChars = defaultMaxContextChars
	}
	if g.backoff <= 0 {
		g.backoff = defaultBackoff
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.minAnswerChars <= 0 {
		g.minAnswerChars = defaultMinAnswerChars
	}
	return g
}

// Generate returns an answer for req. It never fails: after the retries are
// exhausted, or if the cleaned answer is too short, a canned reply is
// returned with Fallback set.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	msgs := g.buildMessages(req)

	var (
		reply string
		err   error
		tries int
	)
	for attempt := 0; ; attempt++ {
		tries++
		reply, err = g.complete(ctx, msgs)
		if err == nil || attempt >= g.retries {
			break
		}
		wait := g.backoff << attempt
		g.logger.Warn("generation failed, retrying",
			zap.Int("attempt", tries), zap.Duration("backoff", wait), zap.Error(err))
		if !sleep(ctx, wait) {
			break
		}
	}
	if err != nil {
		g.logger.Error("generation failed, answering with apology", zap.Int("attempts", tries), zap.Error(err))
		return Result{Answer: ApologyAnswer, Fallback: true, FallbackReason: FallbackError, Attempts: tries}
	}

	answer := Clean(reply)
	if len([]rune(answer)) < g.minAnswerChars {
		g.logger.Warn("answer too short after cleaning", zap.String("answer", answer))
		return Result{Answer: InadequateAnswer, Fallback: true, FallbackReason: FallbackShort, Attempts: tries}
	}
	return Result{Answer: answer, Attempts: tries}
}

func (g *Generator) complete(ctx context.Context, msgs []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return llm.CompleteText(ctx, g.provider, llm.CompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
