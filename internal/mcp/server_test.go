package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/lanne/internal/intent"
	"github.com/ziadkadry99/lanne/internal/orchestrator"
	"github.com/ziadkadry99/lanne/internal/plan"
	"github.com/ziadkadry99/lanne/internal/vectordb"
)

type fakePipeline struct {
	queries []orchestrator.Query
	err     error
}

func (f *fakePipeline) Handle(_ context.Context, q orchestrator.Query, _ ...orchestrator.Option) (*orchestrator.Result, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	id := q.ConversationID
	if id == "" {
		id = "c-new"
	}
	return &orchestrator.Result{
		Answer:         "Use `free -h` para ver a memoria.",
		ConversationID: id,
		Sources:        []string{"agent", "retrieval"},
		Warnings:       []string{orchestrator.WarnNotSaved},
	}, nil
}

func (f *fakePipeline) Plan(context.Context, string) plan.Plan {
	return plan.Fallback()
}

// mockStore implements vectordb.VectorStore for testing.
type mockStore struct {
	docs   []vectordb.Document
	limits []int
}

func (m *mockStore) AddDocuments(_ context.Context, docs []vectordb.Document) error {
	m.docs = append(m.docs, docs...)
	return nil
}

func (m *mockStore) Search(_ context.Context, _ string, limit int, _ *vectordb.SearchFilter) ([]vectordb.SearchResult, error) {
	m.limits = append(m.limits, limit)
	var results []vectordb.SearchResult
	for _, doc := range m.docs {
		results = append(results, vectordb.SearchResult{Document: doc, Similarity: 0.9})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *mockStore) DeleteBySource(context.Context, string) error { return nil }
func (m *mockStore) Persist(context.Context, string) error        { return nil }
func (m *mockStore) Load(context.Context, string) error           { return nil }
func (m *mockStore) Count() int                                   { return len(m.docs) }

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestToolDefinitions(t *testing.T) {
	for _, tool := range []mcp.Tool{askTool, searchKnowledgeTool, planQueryTool} {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.Equal(t, []string{"question"}, askTool.InputSchema.Required)
	assert.Equal(t, []string{"query"}, searchKnowledgeTool.InputSchema.Required)
}

func TestHandleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("new conversation", func(t *testing.T) {
		p := &fakePipeline{}
		srv := NewServer(p, nil, Options{})

		res, err := srv.handleAsk(ctx, call(map[string]any{"question": "quanta memoria livre?"}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		out := text(t, res)
		assert.Contains(t, out, "free -h")
		assert.Contains(t, out, "conversation_id: c-new")
		assert.Contains(t, out, "sources: agent, retrieval")
		assert.Contains(t, out, "warning: "+orchestrator.WarnNotSaved)

		require.Len(t, p.queries, 1)
		assert.Equal(t, defaultUser, p.queries[0].UserID)
		assert.Empty(t, p.queries[0].ConversationID)
	})

	t.Run("continues conversation as configured user", func(t *testing.T) {
		p := &fakePipeline{}
		srv := NewServer(p, nil, Options{UserID: "alice"})

		_, err := srv.handleAsk(ctx, call(map[string]any{"question": "e o swap?", "conversation_id": "c-7"}))
		require.NoError(t, err)
		require.Len(t, p.queries, 1)
		assert.Equal(t, "alice", p.queries[0].UserID)
		assert.Equal(t, "c-7", p.queries[0].ConversationID)
	})

	t.Run("missing question", func(t *testing.T) {
		p := &fakePipeline{}
		srv := NewServer(p, nil, Options{})

		for _, args := range []map[string]any{{}, {"question": "  "}} {
			res, err := srv.handleAsk(ctx, call(args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		}
		assert.Empty(t, p.queries)
	})

	t.Run("forbidden conversation", func(t *testing.T) {
		srv := NewServer(&fakePipeline{err: orchestrator.ErrForbidden}, nil, Options{})

		res, err := srv.handleAsk(ctx, call(map[string]any{"question": "oi", "conversation_id": "c-1"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, text(t, res), "another user")
	})
}

func TestHandleSearchKnowledge(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{docs: []vectordb.Document{
		{ID: "ufw.md#0", Content: "Use ufw allow 22 para liberar o SSH.", Metadata: vectordb.DocumentMetadata{Source: "ufw.md", Section: "Firewall"}},
		{ID: "apt.md#0", Content: "apt update atualiza a lista de pacotes.", Metadata: vectordb.DocumentMetadata{Source: "apt.md"}},
	}}
	srv := NewServer(&fakePipeline{}, store, Options{})

	t.Run("results", func(t *testing.T) {
		res, err := srv.handleSearchKnowledge(ctx, call(map[string]any{"query": "firewall", "limit": 1}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		out := text(t, res)
		assert.Contains(t, out, "Found 1 result(s)")
		assert.Contains(t, out, "Source: ufw.md#0")
		assert.Contains(t, out, "Section: Firewall")
		assert.Equal(t, 1, store.limits[len(store.limits)-1])
	})

	t.Run("default limit", func(t *testing.T) {
		_, err := srv.handleSearchKnowledge(ctx, call(map[string]any{"query": "apt", "limit": -3}))
		require.NoError(t, err)
		assert.Equal(t, defaultSearchLimit, store.limits[len(store.limits)-1])
	})

	t.Run("missing query", func(t *testing.T) {
		res, err := srv.handleSearchKnowledge(ctx, call(map[string]any{}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("empty store", func(t *testing.T) {
		for _, s := range []vectordb.VectorStore{nil, &mockStore{}} {
			res, err := NewServer(&fakePipeline{}, s, Options{}).handleSearchKnowledge(ctx, call(map[string]any{"query": "x"}))
			require.NoError(t, err)
			assert.False(t, res.IsError)
			assert.Contains(t, text(t, res), "lanne ingest")
		}
	})
}

func TestHandlePlanQuery(t *testing.T) {
	srv := NewServer(&fakePipeline{}, nil, Options{})

	res, err := srv.handlePlanQuery(context.Background(), call(map[string]any{"question": "meu wifi caiu"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	out := text(t, res)
	assert.Contains(t, out, `"use_rag": true`)
	assert.Contains(t, out, `"intent": "`+string(intent.Technical)+`"`)
	assert.Contains(t, out, `"fallback": true`)
}
