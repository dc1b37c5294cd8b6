package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validOptions() *Options {
	return &Options{
		Channel:              "somechannel",
		ScreenshotFormat:     "jpg",
		ScreenshotEmbedWidth: DefaultEmbedWidth,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KICK_CHANNEL", "MixedCase")
	t.Setenv("KICK_PROXY", "http://localhost:3456")
	o := Load()
	if o.Channel != "mixedcase" {
		t.Errorf("Channel = %q, want lowercased", o.Channel)
	}
	if o.Proxy != "http://localhost:3456" {
		t.Errorf("Proxy = %q", o.Proxy)
	}
	if o.ScreenshotFormat != "jpg" {
		t.Errorf("default format = %q, want jpg", o.ScreenshotFormat)
	}
	if o.ScreenshotEmbedWidth != DefaultEmbedWidth {
		t.Errorf("default embed width = %d, want %d", o.ScreenshotEmbedWidth, DefaultEmbedWidth)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"valid minimal", func(o *Options) {}, ""},
		{"chatroom id only", func(o *Options) { o.Channel = ""; o.ChatroomID = 42 }, ""},
		{"no identity", func(o *Options) { o.Channel = "" }, "-channel or -chatroom-id"},
		{"both trigger modes", func(o *Options) {
			o.ScreenshotOnSnapshot = true
			o.ScreenshotInterval = 5 * time.Second
		}, "not both"},
		{"interval alone ok", func(o *Options) { o.ScreenshotInterval = 5 * time.Second }, ""},
		{"on-snapshot alone ok", func(o *Options) { o.ScreenshotOnSnapshot = true }, ""},
		{"bad format", func(o *Options) { o.ScreenshotFormat = "gif" }, "jpg or png"},
		{"png ok", func(o *Options) { o.ScreenshotFormat = "png" }, ""},
		{"negative interval", func(o *Options) { o.ScreenshotInterval = -time.Second }, "screenshot interval"},
		{"negative max", func(o *Options) { o.ScreenshotMax = -1 }, "screenshot max"},
		{"zero embed width", func(o *Options) { o.ScreenshotEmbedWidth = 0 }, "embed width"},
		{"negative duration", func(o *Options) { o.Duration = -time.Second }, "duration"},
		{"negative inactivity", func(o *Options) { o.Inactivity = -time.Second }, "inactivity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOptions()
			tt.mutate(o)
			err := o.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSessionName(t *testing.T) {
	o := &Options{Channel: "somechannel"}
	if got := o.SessionName(); got != "somechannel" {
		t.Errorf("SessionName = %q", got)
	}
	o = &Options{ChatroomID: 42}
	if got := o.SessionName(); got != "chatroom-42" {
		t.Errorf("SessionName = %q, want chatroom-42", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	o := validOptions()
	o.ScreenshotOnSnapshot = true
	o.ApplyDefaults("20250601-120000")
	if o.LogPath != "kick-session-somechannel-20250601-120000.jsonl" {
		t.Errorf("LogPath = %q", o.LogPath)
	}
	if want := filepath.Join(".", "kick-session-somechannel-20250601-120000-screenshots"); o.ScreenshotDir != want {
		t.Errorf("ScreenshotDir = %q, want %q", o.ScreenshotDir, want)
	}
}

func TestApplyDefaultsKeepsExplicitPaths(t *testing.T) {
	o := validOptions()
	o.LogPath = "custom.jsonl"
	o.ScreenshotDir = "shots"
	o.ScreenshotInterval = 10 * time.Second
	o.ApplyDefaults("20250601-120000")
	if o.LogPath != "custom.jsonl" || o.ScreenshotDir != "shots" {
		t.Errorf("explicit paths overwritten: %q %q", o.LogPath, o.ScreenshotDir)
	}
}
