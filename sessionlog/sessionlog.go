// Package sessionlog writes the durable JSONL session log: one JSON record per
// line, flushed as written. The record types here are the contract consumed by
// the export subcommands and any downstream tooling.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record type discriminators.
const (
	TypeSessionStart = "session_start"
	TypeMessage      = "message"
	TypeSnapshot     = "snapshot"
)

// tsLayout is microsecond-resolution UTC, e.g. 2025-06-01T12:00:00.000000Z.
const tsLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp renders t in the log's timestamp format.
func Timestamp(t time.Time) string { return t.UTC().Format(tsLayout) }

// Start is the first record of every session log.
type Start struct {
	Type       string `json:"type"`
	TS         string `json:"ts"`
	Channel    string `json:"channel"`
	ChatroomID int64  `json:"chatroom_id"`
	SessionID  string `json:"session_id"`
}

// Message records a single chat message as received.
type Message struct {
	Type     string `json:"type"`
	TS       string `json:"ts"`
	Channel  string `json:"channel"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Snapshot is the periodic aggregate view. Nullable fields are pointers so the
// JSON carries an explicit null when the value is unknown.
type Snapshot struct {
	Type              string  `json:"type"`
	TS                string  `json:"ts"`
	Channel           string  `json:"channel"`
	MessagesPerMinute int     `json:"messages_per_minute"`
	MessagesPerSecond int     `json:"messages_per_second"`
	UniquePerMinute   int     `json:"unique_per_minute"`
	UniquePerSecond   int     `json:"unique_per_second"`
	TotalMessages     int     `json:"total_messages"`
	UniqueTotal       int     `json:"unique_total"`
	ViewerCount       *int    `json:"viewer_count"`
	ScreenshotPath    *string `json:"screenshot_path"`
	ScreenshotBase64  *string `json:"screenshot_base64"`
}

// Writer is an append-only JSONL sink. Writes are serialized by an internal
// mutex; os.File is unbuffered so every record hits the fd before Write
// returns.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

// Create truncates/creates the log file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create session log: %w", err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path reports where the log is being written.
func (w *Writer) Path() string { return w.path }

// Write appends rec as one JSON line.
func (w *Writer) Write(rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", rec, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("session log closed")
	}
	if _, err := w.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	return nil
}

// Close closes the underlying file. Safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
