// Package llmtest provides a scripted generation provider for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ziadkadry99/lanne/internal/llm"
)

// Reply is one scripted answer.
type Reply struct {
	Content string
	Err     error
}

// Text is a successful reply.
func Text(s string) Reply { return Reply{Content: s} }

// Fail is a failed reply.
func Fail(err error) Reply { return Reply{Err: err} }

// Provider returns scripted replies in order and records every request.
// The last reply repeats once the script is exhausted. When Handler is set
// it takes precedence over the script.
type Provider struct {
	mu      sync.Mutex
	Calls   []llm.CompletionRequest
	Replies []Reply
	Handler func(req llm.CompletionRequest) Reply
	// Delay is applied before answering; ctx cancellation wins.
	Delay time.Duration
}

// New creates a Provider with the given script.
func New(replies ...Reply) *Provider {
	return &Provider{Replies: replies}
}

func (p *Provider) Name() string { return "llmtest" }

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, req)
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	var r Reply
	switch {
	case p.Handler != nil:
		r = p.Handler(req)
	case len(p.Replies) == 0:
		r = Text("ok")
	case n < len(p.Replies):
		r = p.Replies[n]
	default:
		r = p.Replies[len(p.Replies)-1]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{Content: r.Content, Model: "llmtest", FinishReason: "stop"}, nil
}

// CallCount returns the number of Complete calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Prompt returns the concatenated message contents of call i.
func (p *Provider) Prompt(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Calls) {
		return ""
	}
	var parts []string
	for _, m := range p.Calls[i].Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
