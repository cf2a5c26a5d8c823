// Package postgres stores emitted messages in the downstream Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

const defaultTable = "forum_messages"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink inserts messages keyed by id; replays of a known id are ignored.
type Sink struct {
	pool  execCloser
	table string
}

// New connects to Postgres and ensures the table exists.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Sink{pool: pool, table: table}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Sink{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the message table. Sentiment columns are filled by a
// later enrichment stage and stay NULL here.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	thread_title TEXT,
	thread_date TEXT,
	latest_poster TEXT,
	latest_post_time TEXT,
	message_content TEXT,
	thread_url TEXT,
	positive_count INTEGER,
	negative_count INTEGER,
	neutral_count INTEGER,
	analyzed_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Emit inserts the message row.
func (s *Sink) Emit(ctx context.Context, msg forum.EmittedMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	thread_title,
	thread_date,
	latest_poster,
	latest_post_time,
	message_content,
	thread_url
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) ON CONFLICT (id) DO NOTHING`, s.table)

	args := []any{
		msg.ID,
		msg.ThreadTitle,
		msg.ThreadDate,
		msg.LatestPoster,
		msg.LatestPostTime,
		msg.MessageContent,
		msg.ThreadURL,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
