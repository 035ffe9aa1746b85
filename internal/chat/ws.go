package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/auth"
	"github.com/ziadkadry99/lanne/internal/orchestrator"
)

// wsRequest is an incoming WebSocket message.
type wsRequest struct {
	Type           string `json:"type"` // "message"
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// handleWebSocket runs one query per "message" frame, streaming the same
// events as the NDJSON endpoint. A socket stays in the conversation of its
// last answer unless a frame names another one.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	user := auth.UserID(r.Context())
	var current string

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			h.sendError(conn, "invalid message format")
			continue
		}
		if req.Type != "" && req.Type != "message" {
			h.sendError(conn, "unknown message type: "+req.Type)
			continue
		}
		if strings.TrimSpace(req.Content) == "" {
			h.sendError(conn, "content is required")
			continue
		}
		if req.ConversationID != "" {
			current = req.ConversationID
		}

		res, err := h.pipeline.Handle(r.Context(), orchestrator.Query{
			ConversationID: current,
			UserID:         user,
			Text:           req.Content,
		}, orchestrator.WithObserver(func(e orchestrator.Event) { h.send(conn, e) }))
		if err != nil {
			continue
		}
		current = res.ConversationID
	}
}

func (h *Handler) send(conn *websocket.Conn, e orchestrator.Event) {
	if err := conn.WriteJSON(e); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

func (h *Handler) sendError(conn *websocket.Conn, msg string) {
	h.send(conn, orchestrator.Event{Type: orchestrator.EventError, Message: msg})
}
