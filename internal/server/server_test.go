package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ziadkadry99/lanne/internal/agent"
	"github.com/ziadkadry99/lanne/internal/auth"
	"github.com/ziadkadry99/lanne/internal/chat"
	"github.com/ziadkadry99/lanne/internal/conversation"
	"github.com/ziadkadry99/lanne/internal/db"
	"github.com/ziadkadry99/lanne/internal/llm/llmtest"
	"github.com/ziadkadry99/lanne/internal/memory"
	"github.com/ziadkadry99/lanne/internal/metrics"
	"github.com/ziadkadry99/lanne/internal/orchestrator"
	"github.com/ziadkadry99/lanne/internal/plan"
	"github.com/ziadkadry99/lanne/internal/respond"
)

type deps struct {
	db    *db.DB
	store *conversation.Store
	reg   *prometheus.Registry
	orch  *orchestrator.Orchestrator
}

func newDeps(t *testing.T) deps {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	reg := prometheus.NewRegistry()
	store := conversation.NewStore(database)
	return deps{
		db:    database,
		store: store,
		reg:   reg,
		orch: orchestrator.New(orchestrator.Options{
			Planner:       plan.NewBuilder(llmtest.New(), plan.Options{}),
			Generator:     respond.NewGenerator(llmtest.New(llmtest.Text("Ola! Como posso ajudar?")), respond.Options{Retries: -1}),
			History:       memory.New(store, memory.Options{}),
			Conversations: store,
			Metrics:       metrics.New(reg),
		}),
	}
}

func (d deps) server(t *testing.T, cfg Config, v *auth.Verifier) *Server {
	logger := zaptest.NewLogger(t)
	return New(cfg, Deps{
		DB:            d.db,
		Chat:          chat.NewHandler(d.orch, nil, chat.Options{Logger: logger}),
		Conversations: d.store,
		Verifier:      v,
		Gatherer:      d.reg,
		Logger:        logger,
	})
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	d := newDeps(t)
	srv := d.server(t, Config{}, nil)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, d.db.Close())
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	d := newDeps(t)

	tests := []struct {
		name   string
		cfg    Config
		origin string
		want   bool
	}{
		{"allow all", Config{AllowAll: true}, "http://example.com", true},
		{"localhost default", Config{}, "http://localhost:3000", true},
		{"foreign origin blocked", Config{}, "http://example.com", false},
		{"configured origin", Config{AllowedOrigins: []string{"https://lanne.example"}}, "https://lanne.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := d.server(t, tt.cfg, nil)
			req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "POST")

			w := serve(srv, req)
			assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin") != "")
		})
	}
}

func TestChatAndConversationRoutes(t *testing.T) {
	d := newDeps(t)
	srv := d.server(t, Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message": "oi"}`))
	req.Header.Set("X-User-ID", "u1")
	w := serve(srv, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("X-User-ID", "u1")
	w = serve(srv, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), res.ConversationID)

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("X-User-ID", "u2")
	w = serve(srv, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), res.ConversationID)
}

func TestAuthRequired(t *testing.T) {
	d := newDeps(t)
	v, err := auth.NewVerifier(strings.Repeat("k", 32), "lanne", time.Hour)
	require.NoError(t, err)
	srv := d.server(t, Config{}, v)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := v.Issue("u1")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = serve(srv, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health and metrics stay public.
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	d := newDeps(t)
	v, err := auth.NewVerifier(strings.Repeat("k", 32), "lanne", time.Hour)
	require.NoError(t, err)

	var leaked []string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		leaked = append(leaked, r.Header.Get("Authorization"))
	}))
	defer foreign.Close()

	build := func(verifier *auth.Verifier) (*Server, *agent.Client) {
		ag := agent.NewClient(agent.Options{URL: "http://127.0.0.1:8765", Enabled: true, Token: "agent-secret"})
		return New(Config{Admins: []string{"root"}}, Deps{
			Chat:     chat.NewHandler(d.orch, ag, chat.Options{}),
			Verifier: verifier,
		}), ag
	}
	put := func(srv *Server, bearer, user string) int {
		req := httptest.NewRequest(http.MethodPut, "/api/admin/agent", strings.NewReader(`{"agent_url": "`+foreign.URL+`"}`))
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		return serve(srv, req).Code
	}

	srv, ag := build(v)
	alice, err := v.Issue("alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, put(srv, alice, ""))
	assert.Equal(t, http.StatusUnauthorized, put(srv, "", "root"))
	u, _ := ag.Settings()
	assert.Equal(t, "http://127.0.0.1:8765", u)

	root, err := v.Issue("root")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, put(srv, root, ""))
	u, _ = ag.Settings()
	assert.Equal(t, foreign.URL, u)
	assert.Empty(t, leaked)

	// Without authentication the header is self-asserted, so nobody is admin.
	unauth, unauthAgent := build(nil)
	assert.Equal(t, http.StatusForbidden, put(unauth, "", "root"))
	u, _ = unauthAgent.Settings()
	assert.Equal(t, "http://127.0.0.1:8765", u)
}

func TestMetricsEndpoint(t *testing.T) {
	d := newDeps(t)
	srv := d.server(t, Config{}, nil)

	_, err := d.orch.Handle(context.Background(), orchestrator.Query{Text: "oi"})
	require.NoError(t, err)

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lanne_requests_total{intent="GREETING"} 1`)
}

func TestShutdownWithoutStart(t *testing.T) {
	srv := New(Config{}, Deps{})
	assert.NoError(t, srv.Shutdown(context.Background()))
}
