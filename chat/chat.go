// Package chat contains the Kick chat listener. It speaks the Pusher wire
// protocol over a websocket: subscribe to the chatroom channel, then filter
// the frame stream for chat message events. Frames that fail to parse are
// counted and skipped.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/onnwee/kick-pulse/telemetry"
)

// DefaultFeedURL is Kick's public Pusher endpoint.
const DefaultFeedURL = "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=go&version=1.0&flash=false"

// chatMessageEvent is the only Pusher event the recorder cares about.
const chatMessageEvent = `App\Events\ChatMessageEvent`

// Message is one chat message extracted from the feed.
type Message struct {
	Username string
	Content  string
}

// Listener connects to the feed and delivers parsed messages via OnMessage.
type Listener struct {
	// URL overrides the feed endpoint (tests). Empty means DefaultFeedURL.
	URL        string
	ChatroomID int64
	OnMessage  func(Message)
}

type envelope struct {
	Event string `json:"event"`
	Data  string `json:"data"` // Pusher double-encodes: data is a JSON string
}

// Run dials the feed, subscribes, and reads until ctx is canceled or the
// connection fails. A nil return means a clean, cancellation-driven exit.
func (l *Listener) Run(ctx context.Context) error {
	feedURL := l.URL
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{
		"event": "pusher:subscribe",
		"data": map[string]string{
			"auth":    "",
			"channel": fmt.Sprintf("chatrooms.%d.v2", l.ChatroomID),
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("feed subscribed", slog.Int64("chatroom_id", l.ChatroomID))

	// Reads block indefinitely on a quiet feed; closing the conn from here
	// is what unblocks them when ctx is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed read: %w", err)
		}
		msg, ok := ParseFrame(data)
		if !ok {
			continue
		}
		if l.OnMessage != nil {
			l.OnMessage(msg)
		}
	}
}

// ParseFrame extracts a chat message from a raw feed frame. The second return
// is false for non-chat events and malformed frames; malformed ones also bump
// the malformed-frame counter.
func ParseFrame(data []byte) (Message, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		countMalformed()
		return Message{}, false
	}
	if env.Event != chatMessageEvent {
		return Message{}, false
	}
	var payload struct {
		Sender struct {
			Username string `json:"username"`
		} `json:"sender"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(env.Data), &payload); err != nil {
		countMalformed()
		return Message{}, false
	}
	username := payload.Sender.Username
	if username == "" {
		username = "anon"
	}
	return Message{Username: username, Content: payload.Content}, true
}

func countMalformed() {
	if telemetry.MalformedFrames != nil {
		telemetry.MalformedFrames.Inc()
	}
}
