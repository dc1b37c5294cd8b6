package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/kick-pulse/stats"
)

// Status line rendering. Cosmetic only: the durable snapshot record carries
// raw numbers.

func colorize(text, code string, enabled bool) string {
	if !enabled {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

func pad(text string, width int) string {
	if len(text) >= width {
		return text[:width]
	}
	return text + strings.Repeat(" ", width-len(text))
}

// groupDigits renders n with thousands separators (1234567 -> "1,234,567").
func groupDigits(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// formatViewers renders a possibly-unknown viewer count.
func formatViewers(v *int) string {
	if v == nil {
		return "n/a"
	}
	return groupDigits(*v)
}

// formatTopActors renders the leaderboard as "name(count), ..." or "n/a".
func formatTopActors(top []stats.ActorCount) string {
	if len(top) == 0 {
		return "n/a"
	}
	parts := make([]string, len(top))
	for i, a := range top {
		parts[i] = fmt.Sprintf("%s(%d)", a.Name, a.Count)
	}
	return strings.Join(parts, ", ")
}

func renderStatus(res stats.Result, viewers *int, color bool) string {
	fields := []struct {
		label, labelCode string
		value, valueCode string
		width            int
	}{
		{"viewers", "36", formatViewers(viewers), "96", 9},
		{"msg/s", "33", fmt.Sprintf("%.1f", float64(res.PerSecond)), "93", 6},
		{"msg/min", "33", strconv.Itoa(res.PerMinute), "93", 6},
		{"uniq/s", "35", strconv.Itoa(res.UniquePerSecond), "95", 6},
		{"uniq/min", "35", strconv.Itoa(res.UniquePerMinute), "95", 6},
		{"total", "32", strconv.Itoa(res.Total), "92", 9},
		{"uniq_total", "32", strconv.Itoa(res.UniqueTotal), "92", 9},
		{"top", "34", formatTopActors(res.TopActors), "94", 32},
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = colorize(f.label, f.labelCode, color) + "=" + colorize(pad(f.value, f.width), f.valueCode, color)
	}
	return strings.Join(parts, "  ")
}
