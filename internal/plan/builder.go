package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/agent"
	"github.com/ziadkadry99/lanne/internal/intent"
	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/logging"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxCommands = 3
	plannerMaxTokens   = 200
)

// Options configures a Builder.
type Options struct {
	// Model overrides the provider's default model when set.
	Model       string
	Timeout     time.Duration
	MaxCommands int
	// AgentAvailable reports whether the remote agent can currently be
	// used. Agent steps are dropped from plans while it returns false.
	AgentAvailable func() bool
	Logger         *zap.Logger
}

// Builder asks the generation model which sources a technical query needs.
type Builder struct {
	provider       llm.Provider
	model          string
	timeout        time.Duration
	maxCommands    int
	agentAvailable func() bool
	logger         *zap.Logger
}

// NewBuilder creates a Builder backed by provider.
func NewBuilder(provider llm.Provider, opts Options) *Builder {
	b := &Builder{
		provider:       provider,
		model:          opts.Model,
		timeout:        opts.Timeout,
		maxCommands:    opts.MaxCommands,
		agentAvailable: opts.AgentAvailable,
		logger:         logging.OrNop(opts.Logger).Named("planner"),
	}
	if b.timeout <= 0 {
		b.timeout = defaultTimeout
	}
	if b.maxCommands <= 0 {
		b.maxCommands = defaultMaxCommands
	}
	return b
}

// Build returns the plan for text. Greetings and casual talk get the trivial
// plan without consulting the model. Any planner failure yields Fallback().
func (b *Builder) Build(ctx context.Context, in intent.Intent, text string) Plan {
	if in.Trivial() {
		return Trivial(in)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	reply, err := llm.CompleteText(ctx, b.provider, llm.CompletionRequest{
		Model:       b.model,
		Messages:    llm.SystemUser(plannerPrompt(), text),
		MaxTokens:   plannerMaxTokens,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		b.logger.Warn("planner unavailable, using fallback plan", zap.Error(err))
		return Fallback()
	}

	p, tier, err := Parse(reply)
	if err != nil {
		b.logger.Warn("planner reply unparseable, using fallback plan", zap.String("reply", truncate(reply, 200)))
		return Fallback()
	}

	p = b.normalize(p)
	if !p.HasSources() {
		b.logger.Info("plan selected no source, using fallback plan")
		return Fallback()
	}

	b.logger.Debug("plan built",
		zap.String("tier", string(tier)),
		zap.Bool("agent", p.UseAgent),
		zap.Strings("commands", p.AgentCommands),
		zap.Bool("rag", p.UseRetrieval),
		zap.Bool("web", p.UseWebSearch),
		zap.String("style", string(p.ResponseStyle)))
	return p
}

func (b *Builder) normalize(p Plan) Plan {
	if len(p.AgentCommands) > b.maxCommands {
		p.AgentCommands = p.AgentCommands[:b.maxCommands]
	}
	if p.UseAgent && b.agentAvailable != nil && !b.agentAvailable() {
		b.logger.Debug("agent unavailable, dropping agent step")
		p.UseAgent = false
	}
	if !p.UseAgent || len(p.AgentCommands) == 0 {
		p.UseAgent = false
		p.AgentCommands = nil
	}
	return p
}

func plannerPrompt() string {
	var sb strings.Builder
	sb.WriteString("Decida quais recursos usar para responder sobre Linux.\n\n")
	sb.WriteString("COMANDOS DISPONIVEIS:\n")
	for _, c := range agent.Catalogue {
		fmt.Fprintf(&sb, "- %s: %s\n", c.Name, c.Description)
	}
	sb.WriteString(plannerRules)
	return sb.String()
}

const plannerRules = `
REGRAS OBRIGATORIAS:
1. Se a pergunta pede informacao do sistema ATUAL (meu, minha, atual, agora) -> use_agent:true
2. Se a pergunta menciona IP, rede, interface, memoria, disco, cpu, usuarios -> use_agent:true
3. Se a pergunta pede executar/rodar/verificar/mostrar algo do sistema -> use_agent:true
4. Se e tutorial/como fazer/instalacao -> use_rag:true, use_agent:false
5. Problema + sistema (disco cheio, lento, erro) -> use_agent:true E use_rag:true
6. Informacao recente ou externa (versoes novas, noticias) -> use_web:true

EXEMPLOS (siga este padrao EXATAMENTE):

Pergunta: "quem esta logado"
Resposta: {"use_agent":true,"agent_commands":["logged_users"],"use_rag":false,"use_web":false,"response_style":"ANALYZE"}

Pergunta: "qual o uso de memoria"
Resposta: {"use_agent":true,"agent_commands":["memory_detailed"],"use_rag":false,"use_web":false,"response_style":"ANALYZE"}

Pergunta: "qual meu IP"
Resposta: {"use_agent":true,"agent_commands":["network_info"],"use_rag":false,"use_web":false,"response_style":"ANALYZE"}

Pergunta: "como instalar docker"
Resposta: {"use_agent":false,"agent_commands":[],"use_rag":true,"use_web":false,"response_style":"TUTORIAL"}

Pergunta: "disco cheio o que faco"
Resposta: {"use_agent":true,"agent_commands":["disk_usage"],"use_rag":true,"use_web":false,"response_style":"ANALYZE"}

Pergunta: "qual a versao mais recente do kernel"
Resposta: {"use_agent":false,"agent_commands":[],"use_rag":false,"use_web":true,"response_style":"CHAT"}

Resposta SOMENTE JSON em uma linha, sem texto adicional.`

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
