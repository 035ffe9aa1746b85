package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestCompleteTextTrims(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Response = &CompletionResponse{Content: "  resposta \n"}

	got, err := CompleteText(context.Background(), mock, CompletionRequest{Messages: SystemUser("s", "u")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "resposta" {
		t.Errorf("expected trimmed content, got %q", got)
	}
	if len(mock.Calls[0].Messages) != 2 || mock.Calls[0].Messages[0].Role != RoleSystem {
		t.Errorf("expected system+user messages, got %+v", mock.Calls[0].Messages)
	}
}

func TestCompleteTextEmpty(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Response = &CompletionResponse{Content: "   "}

	_, err := CompleteText(context.Background(), mock, CompletionRequest{})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestCompleteTextPropagatesError(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Err = errors.New("boom")

	if _, err := CompleteText(context.Background(), mock, CompletionRequest{}); err == nil {
		t.Error("expected error")
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	for _, p := range []string{"openai", "openrouter"} {
		if _, err := NewProvider(p, "some-model", ""); err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	if _, err := NewProvider("unknown", "some-model", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryCompatibleRequiresBaseURL(t *testing.T) {
	if _, err := NewProvider("openai-compatible", "qwen", ""); err == nil {
		t.Error("expected error without base_url")
	}
	p, err := NewProvider("openai-compatible", "qwen", "http://localhost:8000/v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai-compatible" {
		t.Errorf("expected name 'openai-compatible', got %q", p.Name())
	}
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewProvider("ollama", "qwen2.5", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != "http://localhost:11434" {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestFactoryOllamaPrefersBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://env:11434")
	provider, err := NewProvider("ollama", "qwen2.5", "http://cfg:11434")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := provider.(*OllamaProvider).baseURL; got != "http://cfg:11434" {
		t.Errorf("expected configured host, got %q", got)
	}
}

func TestFactoryCreatesOpenAIProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	provider, err := NewProvider("openai", "gpt-4o-mini", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", provider.Name())
	}
}

func TestOllamaProviderComplete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "Ola!"},
			Model:           "qwen2.5",
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 12,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "qwen2.5")
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:  SystemUser("persona", "oi"),
		MaxTokens: 50,
		JSONMode:  true,
		Stop:      []string{"<|im_end|>"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Ola!" || resp.InputTokens != 12 || resp.OutputTokens != 3 {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.Format != "json" || got.Stream || got.Options.NumPredict != 50 || len(got.Options.Stop) != 1 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "missing")
	if _, err := p.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestOpenAICompatibleProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"qwen","choices":[{"index":0,"message":{"role":"assistant","content":"pronto"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatibleProvider("local", "k", srv.URL+"/v1", "qwen")
	resp, err := p.Complete(context.Background(), CompletionRequest{Messages: SystemUser("s", "u")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "pronto" || resp.FinishReason != "stop" || resp.InputTokens != 5 {
		t.Errorf("unexpected response %+v", resp)
	}
	if p.Name() != "local" {
		t.Errorf("expected name 'local', got %q", p.Name())
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	mock := NewMockProvider("test")
	if rl := NewRateLimitedProvider(mock, 0); rl != Provider(mock) {
		t.Error("expected provider to be returned unchanged when rpm <= 0")
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	resp, err := rl.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req := CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}}

	for i := 0; i < 2; i++ {
		if _, err := rl.Complete(ctx, req); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third should block and eventually fail due to context timeout.
	if _, err := rl.Complete(ctx, req); err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls to reach the provider, got %d", mock.CallCount())
	}
}
