// Package archive mirrors session records into Postgres when DB_DSN is set.
// The mirror is strictly best-effort: inserts log failures and move on, and a
// missing database never blocks or fails the live session. The JSONL session
// log remains the durable record.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Store wraps the archive database handle. A nil *Store is a valid disabled
// mirror: all methods no-op.
type Store struct {
	db *sql.DB
}

// Connect opens the archive database from DB_DSN. Returns (nil, nil) when
// DB_DSN is unset, meaning archiving is disabled.
func Connect() (*Store, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate applies idempotent schema changes for the archive tables.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_ts ON chat_messages (session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			messages_per_minute INTEGER NOT NULL,
			messages_per_second INTEGER NOT NULL,
			unique_per_minute INTEGER NOT NULL,
			unique_per_second INTEGER NOT NULL,
			total_messages INTEGER NOT NULL,
			unique_total INTEGER NOT NULL,
			viewer_count INTEGER,
			screenshot_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_session_ts ON snapshots (session_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("archive migrate: %w", err)
		}
	}
	return nil
}

// InsertMessage mirrors one chat message. Best-effort.
func (s *Store) InsertMessage(ctx context.Context, sessionID, channel, username, message string, ts time.Time) {
	if s == nil {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, channel, username, message, ts) VALUES ($1,$2,$3,$4,$5)`,
		sessionID, channel, username, message, ts); err != nil {
		slog.Debug("archive message insert failed", slog.Any("err", err))
	}
}

// SnapshotRow carries the numeric snapshot fields for the mirror.
type SnapshotRow struct {
	TS                time.Time
	MessagesPerMinute int
	MessagesPerSecond int
	UniquePerMinute   int
	UniquePerSecond   int
	TotalMessages     int
	UniqueTotal       int
	ViewerCount       *int
	ScreenshotPath    *string
}

// InsertSnapshot mirrors one snapshot record. Best-effort.
func (s *Store) InsertSnapshot(ctx context.Context, sessionID, channel string, row SnapshotRow) {
	if s == nil {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, channel, ts, messages_per_minute, messages_per_second,
			unique_per_minute, unique_per_second, total_messages, unique_total, viewer_count, screenshot_path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		sessionID, channel, row.TS, row.MessagesPerMinute, row.MessagesPerSecond,
		row.UniquePerMinute, row.UniquePerSecond, row.TotalMessages, row.UniqueTotal,
		row.ViewerCount, row.ScreenshotPath); err != nil {
		slog.Debug("archive snapshot insert failed", slog.Any("err", err))
	}
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
