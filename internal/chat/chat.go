// Package chat exposes the pipeline over HTTP (JSON and NDJSON streaming)
// and WebSocket.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/auth"
	"github.com/ziadkadry99/lanne/internal/logging"
	"github.com/ziadkadry99/lanne/internal/orchestrator"
	"github.com/ziadkadry99/lanne/internal/plan"
)

const maxMessageChars = 4000

// Pipeline answers queries.
type Pipeline interface {
	Handle(ctx context.Context, q orchestrator.Query, opts ...orchestrator.Option) (*orchestrator.Result, error)
	Plan(ctx context.Context, text string) plan.Plan
}

// AgentSettings reconfigures the remote agent at runtime.
type AgentSettings interface {
	Configure(agentURL string, enabled bool) error
	Settings() (string, bool)
}

// Options configures a Handler.
type Options struct {
	// AllowedOrigins restricts WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Handler serves the chat endpoints.
type Handler struct {
	pipeline Pipeline
	agent    AgentSettings
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler creates a Handler. agent may be nil, which disables the admin
// endpoint.
func NewHandler(pipeline Pipeline, agent AgentSettings, opts Options) *Handler {
	h := &Handler{
		pipeline: pipeline,
		agent:    agent,
		logger:   logging.OrNop(opts.Logger).Named("chat"),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	return h
}

// RegisterRoutes mounts the chat, debug and WebSocket routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.handleChat)
	r.Get("/api/debug/plan", h.handleDebugPlan)
	r.Get("/ws/chat", h.handleWebSocket)
}

// RegisterAdminRoutes mounts the agent settings routes. The agent token is
// sent to whatever URL is configured here, so r must only admit administrators.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/api/admin/agent", h.handleGetAgent)
	r.Put("/api/admin/agent", h.handlePutAgent)
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Stream         bool   `json:"stream"`
}

func (c chatRequest) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Message, validation.By(notBlank), validation.RuneLength(1, maxMessageChars)),
		validation.Field(&c.ConversationID, validation.Length(0, 64)),
	)
}

func notBlank(v interface{}) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := orchestrator.Query{
		ConversationID: req.ConversationID,
		UserID:         auth.UserID(r.Context()),
		Text:           req.Message,
	}
	if req.Stream {
		h.stream(w, r, q)
		return
	}

	res, err := h.pipeline.Handle(r.Context(), q)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// stream writes one JSON event per line as the pipeline progresses.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, q orchestrator.Query) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	emit := func(e orchestrator.Event) {
		if err := enc.Encode(e); err != nil {
			h.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		_ = rc.Flush()
	}
	if _, err := h.pipeline.Handle(r.Context(), q, orchestrator.WithObserver(emit)); err != nil {
		h.logger.Info("streamed query rejected", zap.Error(err))
	}
}

func (h *Handler) handleDebugPlan(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	p := h.pipeline.Plan(r.Context(), q)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"intent":  p.Intent,
		"plan":    p,
		"sources": p.Sources(),
	})
}

type agentRequest struct {
	AgentURL string `json:"agent_url"`
	Enabled  *bool  `json:"enabled"`
}

func (a agentRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AgentURL, validation.Required, is.URL),
	)
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		writeError(w, http.StatusNotFound, "agent not configured")
		return
	}
	u, enabled := h.agent.Settings()
	writeJSON(w, http.StatusOK, map[string]any{"agent_url": u, "enabled": enabled})
}

func (h *Handler) handlePutAgent(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		writeError(w, http.StatusNotFound, "agent not configured")
		return
	}
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.agent.Configure(req.AgentURL, enabled); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Info("agent endpoint changed", zap.String("user", auth.UserID(r.Context())), zap.String("url", req.AgentURL))
	u, on := h.agent.Settings()
	writeJSON(w, http.StatusOK, map[string]any{"agent_url": u, "enabled": on})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
