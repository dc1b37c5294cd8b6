// Package config holds the validated options for a recording session. Env
// variables supply defaults (loaded once at startup), CLI flags override them,
// and Validate rejects invalid combinations before any goroutine starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultEmbedWidth is the thumbnail width used when embedding is enabled and
// no width was given.
const DefaultEmbedWidth = 160

// Options is everything the run subcommand needs. Durations of zero mean the
// corresponding feature is off.
type Options struct {
	Channel    string
	ChatroomID int64
	Proxy      string

	LogPath    string
	Duration   time.Duration
	Inactivity time.Duration

	ScreenshotInterval   time.Duration
	ScreenshotOnSnapshot bool
	ScreenshotDir        string
	ScreenshotMax        int
	ScreenshotFormat     string
	ScreenshotEmbed      bool
	ScreenshotEmbedWidth int
	StreamURL            string
	FFmpegPath           string
}

// Load reads environment defaults. Flags applied afterwards win; missing
// optional variables simply leave features off.
func Load() *Options {
	o := &Options{
		Channel:              strings.ToLower(os.Getenv("KICK_CHANNEL")),
		Proxy:                os.Getenv("KICK_PROXY"),
		FFmpegPath:           os.Getenv("FFMPEG_PATH"),
		ScreenshotFormat:     "jpg",
		ScreenshotEmbedWidth: DefaultEmbedWidth,
	}
	return o
}

// CapturesEnabled reports whether either screenshot trigger mode is on.
func (o *Options) CapturesEnabled() bool {
	return o.ScreenshotInterval > 0 || o.ScreenshotOnSnapshot
}

// SessionName is the identifier used in filenames and log records: the
// channel name, or chatroom-<id> when only an id was given.
func (o *Options) SessionName() string {
	if o.Channel != "" {
		return o.Channel
	}
	return fmt.Sprintf("chatroom-%d", o.ChatroomID)
}

// ApplyDefaults fills the derived paths: the session log next to the working
// directory and the screenshot dir next to the log. stamp is the session start
// label (UTC, e.g. 20250601-120000).
func (o *Options) ApplyDefaults(stamp string) {
	if o.LogPath == "" {
		o.LogPath = fmt.Sprintf("kick-session-%s-%s.jsonl", o.SessionName(), stamp)
	}
	if o.CapturesEnabled() && o.ScreenshotDir == "" {
		stem := strings.TrimSuffix(filepath.Base(o.LogPath), filepath.Ext(o.LogPath))
		o.ScreenshotDir = filepath.Join(filepath.Dir(o.LogPath), stem+"-screenshots")
	}
}

// Validate checks the option combinations that must fail fast, before any
// network or goroutine activity.
func (o *Options) Validate() error {
	if o.Channel == "" && o.ChatroomID == 0 {
		return fmt.Errorf("provide -channel or -chatroom-id")
	}
	if o.ScreenshotOnSnapshot && o.ScreenshotInterval > 0 {
		return fmt.Errorf("use either -screenshot-interval or -screenshot-on-snapshot, not both")
	}
	if o.ScreenshotFormat != "jpg" && o.ScreenshotFormat != "png" {
		return fmt.Errorf("screenshot format must be jpg or png")
	}
	if o.ScreenshotInterval < 0 {
		return fmt.Errorf("screenshot interval must be a positive number of seconds")
	}
	if o.ScreenshotMax < 0 {
		return fmt.Errorf("screenshot max must be a positive number")
	}
	if o.ScreenshotEmbedWidth <= 0 {
		return fmt.Errorf("screenshot embed width must be a positive number")
	}
	if o.Duration < 0 {
		return fmt.Errorf("duration must be a positive number of seconds")
	}
	if o.Inactivity < 0 {
		return fmt.Errorf("inactivity must be a positive number of seconds")
	}
	return nil
}
