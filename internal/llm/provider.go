package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyCompletion is returned by CompleteText when the model answered
// with nothing but whitespace.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Provider is the generation collaborator. Implementations must honour ctx
// cancellation; callers bound every call with their own timeout.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}

// CompleteText runs req and returns the trimmed text of the first choice.
func CompleteText(ctx context.Context, p Provider, req CompletionRequest) (string, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
