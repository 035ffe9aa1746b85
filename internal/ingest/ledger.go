package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/lanne/internal/db"
)

// Entry records the last ingestion of one source file.
type Entry struct {
	Source      string
	ContentHash string
	Chunks      int
	IngestedAt  time.Time
}

// Ledger remembers which files are in the index and at which content hash.
type Ledger struct {
	db  *db.DB
	now func() time.Time
}

// NewLedger creates a Ledger on database.
func NewLedger(database *db.DB) *Ledger {
	return &Ledger{db: database, now: time.Now}
}

// Get returns the entry for source. ok is false when it was never ingested.
func (l *Ledger) Get(ctx context.Context, source string) (e Entry, ok bool, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT source, content_hash, chunks, ingested_at FROM ingested_files WHERE source = ?`, source,
	).Scan(&e.Source, &e.ContentHash, &e.Chunks, &e.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading ingestion ledger: %w", err)
	}
	return e, true, nil
}

// Record upserts the entry for source.
func (l *Ledger) Record(ctx context.Context, source, hash string, chunks int) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ingested_files (source, content_hash, chunks, ingested_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunks = excluded.chunks,
			ingested_at = excluded.ingested_at`,
		source, hash, chunks, l.now().UTC())
	if err != nil {
		return fmt.Errorf("recording %s: %w", source, err)
	}
	return nil
}

// Forget removes the entry for source.
func (l *Ledger) Forget(ctx context.Context, source string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM ingested_files WHERE source = ?`, source); err != nil {
		return fmt.Errorf("forgetting %s: %w", source, err)
	}
	return nil
}

// Sources lists every recorded source.
func (l *Ledger) Sources(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT source FROM ingested_files ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("listing ingestion ledger: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
