package session

import (
	"strings"
	"testing"

	"github.com/onnwee/kick-pulse/stats"
)

func TestGroupDigits(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{7, "7"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-42000, "-42,000"},
	}
	for _, tc := range cases {
		if got := groupDigits(tc.in); got != tc.want {
			t.Errorf("groupDigits(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatViewers(t *testing.T) {
	if got := formatViewers(nil); got != "n/a" {
		t.Errorf("nil viewers = %q, want n/a", got)
	}
	n := 12845
	if got := formatViewers(&n); got != "12,845" {
		t.Errorf("formatViewers = %q", got)
	}
}

func TestFormatTopActors(t *testing.T) {
	if got := formatTopActors(nil); got != "n/a" {
		t.Errorf("empty leaderboard = %q, want n/a", got)
	}
	top := []stats.ActorCount{{Name: "alice", Count: 9}, {Name: "bob", Count: 4}}
	if got := formatTopActors(top); got != "alice(9), bob(4)" {
		t.Errorf("formatTopActors = %q", got)
	}
}

func TestRenderStatusPlain(t *testing.T) {
	n := 1500
	res := stats.Result{
		PerMinute:       120,
		PerSecond:       3,
		UniquePerMinute: 40,
		UniquePerSecond: 2,
		Total:           4096,
		UniqueTotal:     512,
		TopActors:       []stats.ActorCount{{Name: "alice", Count: 30}},
	}
	line := renderStatus(res, &n, false)
	if strings.Contains(line, "\x1b[") {
		t.Error("color disabled but line contains escape codes")
	}
	for _, want := range []string{"viewers=1,500", "msg/s=3.0", "total=4096", "uniq_total=512", "alice(30)"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line missing %q: %s", want, line)
		}
	}
}

func TestRenderStatusColor(t *testing.T) {
	line := renderStatus(stats.Result{}, nil, true)
	if !strings.Contains(line, "\x1b[36mviewers\x1b[0m") {
		t.Errorf("colored line missing label escape: %q", line)
	}
}
