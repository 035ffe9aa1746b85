package plan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/ziadkadry99/lanne/internal/intent"
	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/llm/llmtest"
)

func TestBuildTrivialIntentsSkipPlanner(t *testing.T) {
	fake := llmtest.New()
	b := NewBuilder(fake, Options{Logger: zaptest.NewLogger(t)})

	for _, in := range []intent.Intent{intent.Greeting, intent.Casual} {
		p := b.Build(context.Background(), in, "oi")
		assert.Equal(t, in, p.Intent)
		assert.False(t, p.UseAgent)
		assert.False(t, p.UseRetrieval)
		assert.False(t, p.UseWebSearch)
		assert.Empty(t, p.AgentCommands)
		assert.Equal(t, StyleChat, p.ResponseStyle)
	}
	assert.Equal(t, 0, fake.CallCount())
}

func TestBuildUnreachablePlannerFallsBack(t *testing.T) {
	fake := llmtest.New(llmtest.Fail(errors.New("connection refused")))
	b := NewBuilder(fake, Options{})

	p := b.Build(context.Background(), intent.Technical, "como configurar firewall no debian")
	assert.Equal(t, Fallback(), p)
	assert.Equal(t, 1, fake.CallCount())
}

func TestBuildPlannerTimeoutFallsBack(t *testing.T) {
	fake := llmtest.New(llmtest.Text(`{"use_agent":true,"agent_commands":["uptime"]}`))
	fake.Delay = time.Second
	b := NewBuilder(fake, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	p := b.Build(context.Background(), intent.Technical, "uptime do servidor")
	assert.Equal(t, Fallback(), p)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBuildUnparseableFallsBack(t *testing.T) {
	b := NewBuilder(llmtest.New(llmtest.Text("nao sei")), Options{})
	assert.Equal(t, Fallback(), b.Build(context.Background(), intent.Technical, "algo tecnico longo aqui"))
}

func TestBuildNoSourceFallsBack(t *testing.T) {
	b := NewBuilder(llmtest.New(llmtest.Text(`{"use_agent":true,"agent_commands":["format_disk"],"use_rag":false,"use_web":false}`)), Options{})
	p := b.Build(context.Background(), intent.Technical, "formate meu disco agora")
	assert.Equal(t, Fallback(), p)
}

func TestBuildCapsCommands(t *testing.T) {
	b := NewBuilder(llmtest.New(llmtest.Text(
		`{"use_agent":true,"agent_commands":["cpu_usage","memory_detailed","disk_usage","processes_top"],"use_rag":false,"use_web":false,"response_style":"ANALYZE"}`,
	)), Options{MaxCommands: 3})

	p := b.Build(context.Background(), intent.Technical, "o sistema esta lento")
	assert.Equal(t, []string{"cpu_usage", "memory_detailed", "disk_usage"}, p.AgentCommands)
	assert.False(t, p.Fallback)
}

func TestBuildClearsAgentWithoutCommands(t *testing.T) {
	b := NewBuilder(llmtest.New(llmtest.Text(`{"use_agent":true,"agent_commands":[],"use_rag":true}`)), Options{})
	p := b.Build(context.Background(), intent.Technical, "como instalar docker no debian")
	assert.False(t, p.UseAgent)
	assert.True(t, p.UseRetrieval)
	assert.False(t, p.Fallback)
}

func TestBuildDropsAgentWhenUnavailable(t *testing.T) {
	reply := `{"use_agent":true,"agent_commands":["disk_usage"],"use_rag":true,"response_style":"ANALYZE"}`
	b := NewBuilder(llmtest.New(llmtest.Text(reply)), Options{AgentAvailable: func() bool { return false }})

	p := b.Build(context.Background(), intent.Technical, "disco cheio o que faco")
	assert.False(t, p.UseAgent)
	assert.Nil(t, p.AgentCommands)
	assert.True(t, p.UseRetrieval)
	assert.Equal(t, StyleAnalyze, p.ResponseStyle)
}

func TestBuildSendsCatalogueInJSONMode(t *testing.T) {
	fake := llmtest.New(llmtest.Text(`{"use_rag":true}`))
	b := NewBuilder(fake, Options{Model: "planner-model"})
	b.Build(context.Background(), intent.Technical, "como configurar firewall no debian")

	req := fake.Calls[0]
	assert.True(t, req.JSONMode)
	assert.Equal(t, "planner-model", req.Model)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "como configurar firewall no debian", req.Messages[1].Content)
	for _, name := range []string{"journalctl", "logged_users", "network_connections"} {
		assert.True(t, strings.Contains(req.Messages[0].Content, name), name)
	}
}

func TestPlanHelpers(t *testing.T) {
	fb := Fallback()
	assert.True(t, fb.HasSources())
	assert.Equal(t, []string{"retrieval"}, fb.Sources())
	assert.False(t, Trivial(intent.Greeting).HasSources())

	p := Plan{UseAgent: true, AgentCommands: []string{"uptime"}, UseWebSearch: true}
	assert.Equal(t, []string{"agent", "web"}, p.Sources())
}
