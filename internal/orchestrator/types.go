package orchestrator

import (
	"github.com/ziadkadry99/lanne/internal/intent"
	"github.com/ziadkadry99/lanne/internal/plan"
)

// Query is one user message.
type Query struct {
	ConversationID string
	UserID         string
	Text           string
}

// Result is the answer to a Query with the metadata clients display.
type Result struct {
	Answer         string        `json:"response"`
	HTML           string        `json:"html,omitempty"`
	ConversationID string        `json:"conversation_id"`
	Intent         intent.Intent `json:"intent"`
	Plan           plan.Plan     `json:"plan"`
	Sources        []string      `json:"sources"`
	RetrievalScore float64       `json:"rag_similarity"`
	UsedAgent      bool          `json:"used_agent"`
	UsedRetrieval  bool          `json:"used_rag"`
	UsedWeb        bool          `json:"used_web"`
	Fallback       bool          `json:"fallback"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// EventType distinguishes streamed progress events.
type EventType string

const (
	EventStatus EventType = "status"
	EventPlan   EventType = "plan"
	EventFinal  EventType = "final_response"
	EventError  EventType = "error"
)

// Event is a progress notification emitted while a query is handled. Data
// holds the plan for EventPlan and the *Result for EventFinal.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"msg,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// Option customises a single Handle call.
type Option func(*callOptions)

type callOptions struct {
	observer func(Event)
}

// WithObserver streams progress events to fn. fn is called synchronously
// from the handling goroutine.
func WithObserver(fn func(Event)) Option {
	return func(o *callOptions) { o.observer = fn }
}

// Status messages shown to users while a query is in progress.
const (
	msgAnalyzing  = "Analisando sua pergunta..."
	msgAgent      = "Coletando dados: %s..."
	msgRetrieval  = "Buscando na base de conhecimento..."
	msgWeb        = "Buscando na web..."
	msgEvaluating = "Avaliando dados..."
	msgGenerating = "Gerando resposta..."
)

// Warnings reported in Result.Warnings.
const (
	WarnHistoryUnavailable = "conversation history unavailable"
	WarnNotSaved           = "conversation not saved"
)
