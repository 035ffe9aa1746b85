package respond

import (
	"strings"

	"github.com/ziadkadry99/lanne/internal/conversation"
	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/plan"
)

// SystemPrompt is the assistant persona.
const SystemPrompt = `Voce e Lanne, uma assistente tecnica especializada em Linux e Debian.

REGRAS OBRIGATORIAS:
1. Responda APENAS em portugues brasileiro
2. NUNCA use emojis ou emoticons
3. Seja objetiva e concisa (maximo 4 paragrafos)
4. Use crases para destacar comandos: ` + "`comando`" + `
5. Quando analisar dados do sistema, foque nos problemas encontrados`

var styleDirectives = map[plan.Style]string{
	plan.StyleChat:     "Responda de forma casual e amigavel.",
	plan.StyleAnalyze:  "Analise os dados coletados. Foque em: o que encontrou, problemas/alertas, e recomendacoes.",
	plan.StyleTutorial: "De instrucoes claras e praticas. Use no maximo 3-4 comandos principais.",
}

const noContextDirective = "Nao ha dados coletados para esta pergunta. Responda com base no historico da conversa " +
	"e no seu conhecimento geral, sem citar fontes."

// StyleDirective returns the instruction for style; unknown styles get the
// CHAT directive.
func StyleDirective(style plan.Style) string {
	if d, ok := styleDirectives[style]; ok {
		return d
	}
	return styleDirectives[plan.StyleChat]
}

// buildMessages lays out the prompt: persona and style, the running
// summary, the verbatim window, then the query with its context.
func (g *Generator) buildMessages(req Request) []llm.Message {
	system := SystemPrompt + "\n\n" + StyleDirective(req.Style)
	if req.Context == "" {
		system += "\n\n" + noContextDirective
	}
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: system}}

	if req.History.Summary != "" {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSystem,
			Content: "RESUMO DA CONVERSA ATE AQUI:\n" + req.History.Summary,
		})
	}
	for _, t := range req.History.Turns {
		switch t.Role {
		case conversation.RoleUser:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: t.Content})
		case conversation.RoleAssistant:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: t.Content})
		}
	}

	var user strings.Builder
	user.WriteString(req.Query)
	if req.Context != "" {
		user.WriteString("\n\nCONTEXTO DISPONIVEL:\n")
		user.WriteString(truncate(req.Context, g.maxContextChars))
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: user.String()})
	return msgs
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
