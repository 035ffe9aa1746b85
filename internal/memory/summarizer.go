package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/conversation"
	"github.com/ziadkadry99/lanne/internal/llm"
	"github.com/ziadkadry99/lanne/internal/logging"
)

const defaultMaxSummaryChars = 4000

// Summarizer folds turns that left the window into the running summary.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, evicted []conversation.Turn) (string, error)
}

// ConcatSummarizer appends one "role: text" line per evicted turn and keeps
// only the most recent MaxChars characters, cut at a line boundary.
type ConcatSummarizer struct {
	MaxChars int
}

func (s ConcatSummarizer) Summarize(_ context.Context, previous string, evicted []conversation.Turn) (string, error) {
	lines := make([]string, 0, len(evicted)+1)
	if previous != "" {
		lines = append(lines, previous)
	}
	for _, t := range evicted {
		lines = append(lines, string(t.Role)+": "+oneLine(t.Content))
	}
	return keepTail(strings.Join(lines, "\n"), s.maxChars()), nil
}

func (s ConcatSummarizer) maxChars() int {
	if s.MaxChars <= 0 {
		return defaultMaxSummaryChars
	}
	return s.MaxChars
}

// LLMSummarizer rewrites the summary with the generation model. It falls
// back to concatenation when the model fails.
type LLMSummarizer struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
	fallback ConcatSummarizer
	logger   *zap.Logger
}

// NewLLMSummarizer creates an LLMSummarizer.
func NewLLMSummarizer(provider llm.Provider, model string, maxChars int, logger *zap.Logger) *LLMSummarizer {
	return &LLMSummarizer{
		provider: provider,
		model:    model,
		timeout:  20 * time.Second,
		fallback: ConcatSummarizer{MaxChars: maxChars},
		logger:   logging.OrNop(logger).Named("summarizer"),
	}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, previous string, evicted []conversation.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var sb strings.Builder
	if previous != "" {
		fmt.Fprintf(&sb, "RESUMO ATUAL:\n%s\n\n", previous)
	}
	sb.WriteString("NOVAS MENSAGENS:\n")
	for _, t := range evicted {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, oneLine(t.Content))
	}

	out, err := llm.CompleteText(ctx, s.provider, llm.CompletionRequest{
		Model:       s.model,
		Messages:    llm.SystemUser(summarizerPrompt, sb.String()),
		MaxTokens:   400,
		Temperature: 0.1,
	})
	if err != nil {
		s.logger.Warn("llm summary failed, concatenating instead", zap.Error(err))
		return s.fallback.Summarize(ctx, previous, evicted)
	}
	return keepTail(out, s.fallback.maxChars()), nil
}

const summarizerPrompt = `Voce mantem o resumo de uma conversa sobre Linux e Debian.
Atualize o resumo incorporando as novas mensagens. Preserve fatos sobre o sistema do usuario,
problemas relatados e solucoes ja sugeridas. Responda apenas com o resumo, em portugues, sem emojis.`

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// keepTail returns the last n runes of s, starting at a line boundary when
// one is available.
func keepTail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	tail := string(r[len(r)-n:])
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return tail
}
