package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists journal entries to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite journal.
// The path should be a file path (e.g., "./journal.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS journal_entries (
			event_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			content_type TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			depth INTEGER NOT NULL,
			processor TEXT NOT NULL,
			processor_order INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (event_id, sequence)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_journal_entries_event_type
		ON journal_entries(event_type)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal_entries (
			event_id, sequence, event_type, content_type, parent_id, depth,
			processor, processor_order, status, error, timestamp
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, sequence) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		res, err := stmt.ExecContext(ctx,
			e.EventID, e.Sequence, e.EventType, e.ContentType, e.ParentID, e.Depth,
			e.Processor, e.Order, string(e.Status), e.Error,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: event %s sequence %d", ErrDuplicateEntry, e.EventID, e.Sequence)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, eventID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, sequence, event_type, content_type, parent_id, depth,
			processor, processor_order, status, error, timestamp
		FROM journal_entries
		WHERE event_id = ?
		ORDER BY sequence
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return scanEntries(rows)
}

// ListByType implements Store.
func (s *SQLiteStore) ListByType(ctx context.Context, eventType string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	// SQLite treats a negative LIMIT as no limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, sequence, event_type, content_type, parent_id, depth,
			processor, processor_order, status, error, timestamp
		FROM journal_entries
		WHERE event_type = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries by type: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var status, timestamp string
		if err := rows.Scan(
			&e.EventID, &e.Sequence, &e.EventType, &e.ContentType, &e.ParentID, &e.Depth,
			&e.Processor, &e.Order, &status, &e.Error, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Status = Status(status)
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
