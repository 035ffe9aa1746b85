package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/lanne/internal/auth"
)

// RegisterRoutes mounts the conversation API routes. Every route acts on
// behalf of the authenticated user.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", handleList(store))
		r.Get("/{id}/messages", handleMessages(store))
		r.Delete("/{id}", handleDelete(store))
	})
}

func handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		convs, err := store.ListConversations(r.Context(), auth.UserID(r.Context()), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if convs == nil {
			convs = []Conversation{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
	}
}

func handleMessages(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, ok := ownedConversation(w, r, store)
		if !ok {
			return
		}
		turns, err := store.LoadTurns(r.Context(), conv.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if turns == nil {
			turns = []Turn{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation": conv, "messages": turns})
	}
}

func handleDelete(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, ok := ownedConversation(w, r, store)
		if !ok {
			return
		}
		if err := store.DeleteConversation(r.Context(), conv.ID); err != nil && !errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ownedConversation(w http.ResponseWriter, r *http.Request, store *Store) (*Conversation, bool) {
	conv, err := store.GetConversation(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	case conv.UserID != auth.UserID(r.Context()):
		writeError(w, http.StatusForbidden, "conversation belongs to another user")
		return nil, false
	}
	return conv, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
