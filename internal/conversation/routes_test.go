package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/lanne/internal/auth"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Store) {
	t.Helper()
	s := newTestStore(t)
	r := chi.NewRouter()
	r.Use(auth.Middleware(nil))
	RegisterRoutes(r, s)
	return r, s
}

func do(r http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutesListOnlyOwnConversations(t *testing.T) {
	r, s := newTestRouter(t)
	ctx := context.Background()
	_, err := s.AppendTurns(ctx, "c1", "ana", []Turn{userTurn("oi")}, nil)
	require.NoError(t, err)
	_, err = s.AppendTurns(ctx, "c2", "bruno", []Turn{userTurn("ola")}, nil)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/conversations", "ana")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Conversations []Conversation `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Conversations, 1)
	assert.Equal(t, "c1", body.Conversations[0].ID)

	w = do(r, http.MethodGet, "/api/conversations?limit=0", "ana")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/conversations", "ninguem")
	assert.JSONEq(t, `{"conversations":[]}`, w.Body.String())
}

func TestRoutesMessages(t *testing.T) {
	r, s := newTestRouter(t)
	_, err := s.AppendTurns(context.Background(), "c1", "ana", []Turn{userTurn("oi"), assistantTurn("Ola!")}, nil)
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/conversations/c1/messages", "ana")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []Turn `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "Ola!", body.Messages[1].Content)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/conversations/c1/messages", "bruno").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/conversations/zz/messages", "ana").Code)
}

func TestRoutesDelete(t *testing.T) {
	r, s := newTestRouter(t)
	_, err := s.AppendTurns(context.Background(), "c1", "ana", []Turn{userTurn("oi")}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/api/conversations/c1", "bruno").Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/conversations/c1", "ana").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/conversations/c1", "ana").Code)
}
