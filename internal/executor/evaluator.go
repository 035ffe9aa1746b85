package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/logging"
)

const (
	defaultEvalTimeout = 5 * time.Second
	evalMaxAgentChars  = 2000
	evalMaxTokens      = 100
)

var errNoVerdict = errors.New("evaluator reply has no JSON object")

// Evaluation is the evaluator's verdict on collected agent data.
type Evaluation struct {
	Sufficient    bool   `json:"sufficient"`
	NeedRetrieval bool   `json:"need_rag"`
	NeedWeb       bool   `json:"need_web"`
	Reason        string `json:"reason"`
}

// EvaluatorOptions configures an Evaluator.
type EvaluatorOptions struct {
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Evaluator asks the model whether agent output alone answers the question.
type Evaluator struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(provider llm.Provider, opts EvaluatorOptions) *Evaluator {
	return &Evaluator{
		provider: provider,
		model:    opts.Model,
		timeout:  orDefault(opts.Timeout, defaultEvalTimeout),
		logger:   logging.OrNop(opts.Logger).Named("evaluator"),
	}
}

// NeedsEvaluation reports whether c holds agent data and nothing else.
func NeedsEvaluation(c *Context) bool {
	return c != nil && c.AgentData != "" && c.RetrievalData == "" && c.WebData == ""
}

// Evaluate returns the model's verdict. A missing "sufficient" field counts
// as sufficient.
func (v *Evaluator) Evaluate(ctx context.Context, text string, c *Context) (Evaluation, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	reply, err := llm.CompleteText(ctx, v.provider, llm.CompletionRequest{
		Model:       v.model,
		Messages:    llm.SystemUser(evaluatorPrompt, evaluatorQuestion(text, c.AgentData)),
		MaxTokens:   evalMaxTokens,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate context: %w", err)
	}
	return parseEvaluation(reply)
}

// Refine runs the evaluator when c holds only agent data and fetches the
// sources it asks for. Evaluator failures leave c unchanged.
func (e *Executor) Refine(ctx context.Context, v *Evaluator, text string, c *Context) *Context {
	if v == nil || !NeedsEvaluation(c) {
		return c
	}
	ev, err := v.Evaluate(ctx, text, c)
	if err != nil {
		e.logger.Warn("context evaluation failed, keeping collected data", zap.Error(err))
		return c
	}
	e.logger.Debug("context evaluated",
		zap.Bool("sufficient", ev.Sufficient),
		zap.Bool("need_rag", ev.NeedRetrieval),
		zap.Bool("need_web", ev.NeedWeb),
		zap.String("reason", ev.Reason))
	if ev.Sufficient {
		return c
	}
	return e.Supplement(ctx, c, ev.NeedRetrieval, ev.NeedWeb, text)
}

func parseEvaluation(reply string) (Evaluation, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Evaluation{}, errNoVerdict
	}

	var raw struct {
		Sufficient    *bool  `json:"sufficient"`
		NeedRetrieval bool   `json:"need_rag"`
		NeedWeb       bool   `json:"need_web"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	ev := Evaluation{
		Sufficient:    true,
		NeedRetrieval: raw.NeedRetrieval,
		NeedWeb:       raw.NeedWeb,
		Reason:        raw.Reason,
	}
	if raw.Sufficient != nil {
		ev.Sufficient = *raw.Sufficient
	}
	return ev, nil
}

const evaluatorPrompt = `Voce e um avaliador de contexto. Analise os dados coletados e decida se precisa de mais informacao.

RESPONDA APENAS com JSON:
{"sufficient": true|false, "need_rag": true|false, "need_web": true|false, "reason": "explicacao curta"}

REGRAS:
- Se os dados respondem a pergunta completamente -> sufficient=true
- Se precisa de documentacao/tutorial para complementar -> need_rag=true
- Se precisa de informacao externa/atualizada -> need_web=true
- Na duvida, prefira sufficient=true (evitar buscas desnecessarias)`

func evaluatorQuestion(text, agentData string) string {
	return "PERGUNTA: " + text +
		"\n\nDADOS COLETADOS:\n" + truncate(agentData, evalMaxAgentChars) +
		"\n\nOs dados acima sao suficientes para responder a pergunta?"
}
