// Package plan decides which information sources a query needs.
package plan

import "github.com/ziadkadry99/lanne/internal/intent"

// Style selects the tone of the final answer.
type Style string

const (
	StyleChat     Style = "CHAT"
	StyleAnalyze  Style = "ANALYZE"
	StyleTutorial Style = "TUTORIAL"
)

// Plan is the execution plan for one query. Reasoning is carried for
// observability only.
type Plan struct {
	Intent        intent.Intent `json:"intent"`
	UseAgent      bool          `json:"use_agent"`
	AgentCommands []string      `json:"agent_commands"`
	UseRetrieval  bool          `json:"use_rag"`
	UseWebSearch  bool          `json:"use_web"`
	ResponseStyle Style         `json:"response_style"`
	Reasoning     string        `json:"reasoning,omitempty"`
	Fallback      bool          `json:"fallback"`
}

// Trivial is the plan for greetings and casual talk: no sources, chat style.
func Trivial(in intent.Intent) Plan {
	return Plan{Intent: in, ResponseStyle: StyleChat}
}

// Fallback is the conservative plan used when the planner cannot be
// consulted or returns nothing usable: knowledge base only.
func Fallback() Plan {
	return Plan{
		Intent:        intent.Technical,
		UseRetrieval:  true,
		ResponseStyle: StyleChat,
		Fallback:      true,
	}
}

// HasSources reports whether the plan consults at least one source.
func (p Plan) HasSources() bool {
	return (p.UseAgent && len(p.AgentCommands) > 0) || p.UseRetrieval || p.UseWebSearch
}

// Sources lists the enabled sources in citation order.
func (p Plan) Sources() []string {
	var out []string
	if p.UseAgent {
		out = append(out, "agent")
	}
	if p.UseRetrieval {
		out = append(out, "retrieval")
	}
	if p.UseWebSearch {
		out = append(out, "web")
	}
	return out
}

func parseStyle(s string) Style {
	switch s {
	case "ANALYZE", "ANALISE", "ANALISAR":
		return StyleAnalyze
	case "TUTORIAL":
		return StyleTutorial
	default:
		return StyleChat
	}
}
