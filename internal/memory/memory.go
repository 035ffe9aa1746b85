// Package memory keeps the short-term window and long-term summary of each
// conversation.
package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/lanne/internal/conversation"
	"github.com/ziadkadry99/lanne/internal/logging"
)

const (
	defaultWindowSize  = 6
	defaultLockTimeout = 5 * time.Second
)

// State is the context window of a conversation: the summary of every turn
// before the window, then the window itself in chronological order.
type State struct {
	ConversationID string              `json:"conversation_id"`
	Summary        string              `json:"summary,omitempty"`
	Covered        int                 `json:"covered"`
	Turns          []conversation.Turn `json:"turns"`
	Total          int                 `json:"total"`
}

// Store is the persistence Memory needs.
type Store interface {
	AppendTurns(ctx context.Context, conversationID, userID string, turns []conversation.Turn, summary *conversation.Summary) ([]conversation.Turn, error)
	LoadTurnRange(ctx context.Context, conversationID string, from, to int) ([]conversation.Turn, error)
	CountTurns(ctx context.Context, conversationID string) (int, error)
	LoadSummary(ctx context.Context, conversationID string) (conversation.Summary, error)
}

// Options configures a Memory.
type Options struct {
	WindowSize  int
	LockTimeout time.Duration
	Summarizer  Summarizer
	Locker      Locker
	Logger      *zap.Logger
}

// Memory serialises reads and writes per conversation.
type Memory struct {
	store       Store
	window      int
	lockTimeout time.Duration
	summarizer  Summarizer
	locker      Locker
	logger      *zap.Logger
}

// New creates a Memory. Defaults: window 6, concatenating summarizer,
// in-process locker.
func New(store Store, opts Options) *Memory {
	m := &Memory{
		store:       store,
		window:      opts.WindowSize,
		lockTimeout: opts.LockTimeout,
		summarizer:  opts.Summarizer,
		locker:      opts.Locker,
		logger:      logging.OrNop(opts.Logger).Named("memory"),
	}
	if m.window <= 0 {
		m.window = defaultWindowSize
	}
	if m.lockTimeout <= 0 {
		m.lockTimeout = defaultLockTimeout
	}
	if m.summarizer == nil {
		m.summarizer = ConcatSummarizer{}
	}
	if m.locker == nil {
		m.locker = NewLocalLocker()
	}
	return m
}

// WindowSize returns the number of verbatim turns kept.
func (m *Memory) WindowSize() int { return m.window }

// Window returns the summary and the most recent turns. It observes every
// Commit that finished before it started.
func (m *Memory) Window(ctx context.Context, conversationID string) (State, error) {
	unlock, err := m.lock(ctx, conversationID)
	if err != nil {
		return State{}, err
	}
	defer unlock()
	return m.read(ctx, conversationID)
}

// Commit appends turns and folds every turn that left the window into the
// summary. Turns and summary are written in one transaction.
func (m *Memory) Commit(ctx context.Context, conversationID, userID string, turns ...conversation.Turn) (State, error) {
	unlock, err := m.lock(ctx, conversationID)
	if err != nil {
		return State{}, err
	}
	defer unlock()

	if len(turns) == 0 {
		return m.read(ctx, conversationID)
	}

	stored, err := m.store.CountTurns(ctx, conversationID)
	if err != nil {
		return State{}, err
	}
	sum, err := m.store.LoadSummary(ctx, conversationID)
	if err != nil {
		return State{}, err
	}

	total := stored + len(turns)
	covered := max(sum.Covered, total-m.window)

	var next *conversation.Summary
	if covered > sum.Covered {
		evicted, err := m.store.LoadTurnRange(ctx, conversationID, sum.Covered+1, min(covered, stored))
		if err != nil {
			return State{}, err
		}
		if covered > stored {
			evicted = append(evicted, turns[:covered-stored]...)
		}
		text, err := m.summarizer.Summarize(ctx, sum.Text, evicted)
		if err != nil {
			return State{}, fmt.Errorf("summarize conversation: %w", err)
		}
		next = &conversation.Summary{Text: text, Covered: covered}
		m.logger.Debug("folded turns into summary",
			zap.String("conversation", conversationID),
			zap.Int("evicted", len(evicted)),
			zap.Int("covered", covered))
	}

	if _, err := m.store.AppendTurns(ctx, conversationID, userID, turns, next); err != nil {
		return State{}, err
	}
	return m.read(ctx, conversationID)
}

func (m *Memory) lock(ctx context.Context, conversationID string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	return m.locker.Lock(lctx, conversationID)
}

func (m *Memory) read(ctx context.Context, conversationID string) (State, error) {
	total, err := m.store.CountTurns(ctx, conversationID)
	if err != nil {
		return State{}, err
	}
	sum, err := m.store.LoadSummary(ctx, conversationID)
	if err != nil {
		return State{}, err
	}

	from := max(sum.Covered, total-m.window) + 1
	turns, err := m.store.LoadTurnRange(ctx, conversationID, from, total)
	if err != nil {
		return State{}, err
	}
	return State{
		ConversationID: conversationID,
		Summary:        sum.Text,
		Covered:        sum.Covered,
		Turns:          turns,
		Total:          total,
	}, nil
}
