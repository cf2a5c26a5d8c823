// Package sqlite stores emitted messages in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// schemaVersion is stored in PRAGMA user_version; bump with each migration.
const schemaVersion = 1

// Sink writes messages into the messages table.
type Sink struct {
	db *sql.DB
}

// Open creates (or reuses) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite.path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	thread_title     TEXT,
	thread_date      TEXT,
	latest_poster    TEXT,
	latest_post_time TEXT,
	message_content  TEXT,
	thread_url       TEXT,
	positive_count   INTEGER,
	negative_count   INTEGER,
	neutral_count    INTEGER,
	analyzed_at      TEXT,
	inserted_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_messages_thread_url ON messages(thread_url);`); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Emit inserts the message; an id already present is left untouched.
func (s *Sink) Emit(ctx context.Context, msg forum.EmittedMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages (
	id, thread_title, thread_date, latest_poster, latest_post_time, message_content, thread_url
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		msg.ID,
		msg.ThreadTitle,
		msg.ThreadDate,
		msg.LatestPoster,
		msg.LatestPostTime,
		msg.MessageContent,
		msg.ThreadURL,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Get loads a stored message by id.
func (s *Sink) Get(ctx context.Context, id string) (forum.EmittedMessage, bool, error) {
	var msg forum.EmittedMessage
	err := s.db.QueryRowContext(ctx, `
SELECT id, thread_title, thread_date, latest_poster, latest_post_time, message_content, thread_url
FROM messages WHERE id = ?`, id).Scan(
		&msg.ID,
		&msg.ThreadTitle,
		&msg.ThreadDate,
		&msg.LatestPoster,
		&msg.LatestPostTime,
		&msg.MessageContent,
		&msg.ThreadURL,
	)
	if err == sql.ErrNoRows {
		return forum.EmittedMessage{}, false, nil
	}
	if err != nil {
		return forum.EmittedMessage{}, false, fmt.Errorf("select message: %w", err)
	}
	return msg, true, nil
}

// Count returns the number of stored messages.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Sink) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
