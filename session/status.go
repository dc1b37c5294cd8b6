package session

import (
	"github.com/onnwee/kick-pulse/sessionlog"
)

// Status is the live view served by the status endpoint.
type Status struct {
	SessionID         string  `json:"session_id"`
	Channel           string  `json:"channel"`
	ChatroomID        int64   `json:"chatroom_id"`
	StartedAt         string  `json:"started_at"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	MessagesPerMinute int     `json:"messages_per_minute"`
	MessagesPerSecond int     `json:"messages_per_second"`
	UniquePerMinute   int     `json:"unique_per_minute"`
	UniquePerSecond   int     `json:"unique_per_second"`
	TotalMessages     int     `json:"total_messages"`
	UniqueTotal       int     `json:"unique_total"`
	ViewerCount       *int    `json:"viewer_count"`
	ScreenshotPath    *string `json:"screenshot_path"`
}

// Status snapshots the current window state for the HTTP status endpoint.
func (s *Session) Status() Status {
	now := s.now()
	s.mu.Lock()
	res := s.window.Query(now)
	viewers := s.viewers
	shot := s.latestShot
	s.mu.Unlock()

	st := Status{
		SessionID:         s.id,
		Channel:           s.channelLabel(),
		ChatroomID:        s.chatroomID,
		MessagesPerMinute: res.PerMinute,
		MessagesPerSecond: res.PerSecond,
		UniquePerMinute:   res.UniquePerMinute,
		UniquePerSecond:   res.UniquePerSecond,
		TotalMessages:     res.Total,
		UniqueTotal:       res.UniqueTotal,
		ViewerCount:       viewers,
		ScreenshotPath:    shot,
	}
	if !s.startedAt.IsZero() {
		st.StartedAt = sessionlog.Timestamp(s.startedAt)
		st.UptimeSeconds = now.Sub(s.startedAt).Seconds()
	}
	return st
}
