package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/lanne/internal/db"
)

// Store manages persistence of conversations, turns and summaries.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a conversation store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: func() time.Time { return time.Now().UTC() }}
}

// CreateConversation inserts an empty conversation. An empty id gets a new
// UUID.
func (s *Store) CreateConversation(ctx context.Context, id, userID, title string) (*Conversation, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return &Conversation{ID: id, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversation returns a conversation or ErrNotFound.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns a user's conversations, most recently active
// first. limit <= 0 means no limit.
func (s *Store) ListConversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	query := `SELECT id, user_id, title, created_at, updated_at FROM conversations
		 WHERE user_id = ? ORDER BY updated_at DESC, id`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes a conversation with its turns and summary.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTurn appends a single turn. See AppendTurns.
func (s *Store) AppendTurn(ctx context.Context, conversationID, userID string, t Turn) (Turn, error) {
	out, err := s.AppendTurns(ctx, conversationID, userID, []Turn{t}, nil)
	if err != nil {
		return Turn{}, err
	}
	return out[0], nil
}

// AppendTurns appends turns in one transaction, assigning ids and sequence
// numbers. A missing conversation is created for userID, titled after the
// first user turn; an existing one must belong to userID. When summary is non-nil it is saved in the same
// transaction.
func (s *Store) AppendTurns(ctx context.Context, conversationID, userID string, turns []Turn, summary *Summary) ([]Turn, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	title := ""
	for _, t := range turns {
		if t.Role == RoleUser {
			title = Title(t.Content)
			break
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		conversationID, userID, title, now, now,
	); err != nil {
		return nil, fmt.Errorf("ensuring conversation: %w", err)
	}
	var owner string
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM conversations WHERE id = ?`, conversationID,
	).Scan(&owner); err != nil {
		return nil, fmt.Errorf("reading conversation owner: %w", err)
	}
	if owner != userID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, conversationID)
	}
	if title != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET title = ? WHERE id = ? AND title = ''`, title, conversationID,
		); err != nil {
			return nil, fmt.Errorf("setting title: %w", err)
		}
	}

	var last int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE conversation_id = ?`, conversationID,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("reading last sequence: %w", err)
	}

	out := make([]Turn, len(turns))
	for i, t := range turns {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.ConversationID = conversationID
		t.Seq = last + i + 1

		meta, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding turn metadata: %w", err)
		}
		if t.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (id, conversation_id, seq, role, content, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ConversationID, t.Seq, string(t.Role), t.Content, string(meta), t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("inserting turn: %w", err)
		}
		out[i] = t
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID,
	); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}
	if summary != nil {
		if err := saveSummary(ctx, tx, conversationID, *summary, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit turns: %w", err)
	}
	return out, nil
}

const turnColumns = `id, conversation_id, seq, role, content, metadata, created_at`

// LoadTurns returns every turn of a conversation in order.
func (s *Store) LoadTurns(ctx context.Context, conversationID string) ([]Turn, error) {
	return s.queryTurns(ctx,
		`SELECT `+turnColumns+` FROM turns WHERE conversation_id = ? ORDER BY seq`, conversationID)
}

// LoadRecentTurns returns the last n turns in chronological order.
func (s *Store) LoadRecentTurns(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryTurns(ctx,
		`SELECT `+turnColumns+` FROM (
		   SELECT * FROM turns WHERE conversation_id = ? ORDER BY seq DESC LIMIT ?
		 ) ORDER BY seq`, conversationID, n)
}

// LoadTurnRange returns the turns with from <= seq <= to, in order.
func (s *Store) LoadTurnRange(ctx context.Context, conversationID string, from, to int) ([]Turn, error) {
	if to < from {
		return nil, nil
	}
	return s.queryTurns(ctx,
		`SELECT `+turnColumns+` FROM turns WHERE conversation_id = ? AND seq BETWEEN ? AND ? ORDER BY seq`,
		conversationID, from, to)
}

// CountTurns returns the number of turns in a conversation.
func (s *Store) CountTurns(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM turns WHERE conversation_id = ?`, conversationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}

// LoadSummary returns the running summary, or the zero Summary when none
// has been saved.
func (s *Store) LoadSummary(ctx context.Context, conversationID string) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, covered, updated_at FROM summaries WHERE conversation_id = ?`, conversationID,
	).Scan(&sum.Text, &sum.Covered, &sum.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, nil
	}
	if err != nil {
		return Summary{}, fmt.Errorf("loading summary: %w", err)
	}
	return sum, nil
}

// SaveSummary replaces the running summary of an existing conversation.
func (s *Store) SaveSummary(ctx context.Context, conversationID string, sum Summary) error {
	return saveSummary(ctx, s.db, conversationID, sum, s.now())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSummary(ctx context.Context, ex execer, conversationID string, sum Summary, now time.Time) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO summaries (conversation_id, summary, covered, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET summary = excluded.summary, covered = excluded.covered, updated_at = excluded.updated_at`,
		conversationID, sum.Text, sum.Covered, now,
	)
	if err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	return nil
}

func (s *Store) queryTurns(ctx context.Context, query string, args ...any) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var (
			t    Turn
			role string
			meta string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &role, &t.Content, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = Role(role)
		if meta = strings.TrimSpace(meta); meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
				return nil, fmt.Errorf("decoding turn metadata: %w", err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
