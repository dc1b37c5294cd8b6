// Package stats maintains sliding-window message statistics for a live chat
// session: rolling per-minute/per-second counts, unique-chatter cardinality,
// lifetime totals, and the top chatters by lifetime message count.
package stats

import (
	"sort"
	"time"
)

const (
	// horizon is how long an event stays in the rolling window.
	horizon = 60 * time.Second
	// burst is the short sub-window rescanned on every query.
	burst = time.Second
	// topN is how many chatters the leaderboard reports.
	topN = 3
)

// Event is a single chat message occurrence. Immutable once recorded.
type Event struct {
	At    time.Time
	Actor string
}

// ActorCount pairs a chatter with their lifetime message count.
type ActorCount struct {
	Name  string
	Count int
}

// Result is a point-in-time view of the window. All fields are raw numbers;
// formatting (thousands separators, "n/a") is the caller's concern.
type Result struct {
	PerMinute       int
	PerSecond       int
	UniquePerMinute int
	UniquePerSecond int
	Total           int
	UniqueTotal     int
	TopActors       []ActorCount
}

// Window holds the retained event sequence and lifetime aggregates.
//
// Not safe for concurrent use: the session guards the window (and the rest of
// its shared state) behind a single mutex so count and uniqueness updates
// appear atomic to readers.
//
// The per-second count is recomputed by rescanning the retained slice rather
// than maintained incrementally. The retained slice is capped by the 60s
// horizon, so the rescan is bounded by one minute of chat; at higher message
// rates this is the first thing to revisit.
type Window struct {
	// Now is the injected time source. Defaults to time.Now.
	Now func() time.Time

	events    []Event
	total     int
	counts    map[string]int
	firstSeen map[string]int
	lastMsg   time.Time
	started   time.Time
}

// NewWindow returns an empty window on the given time source (nil means
// time.Now). The inactivity baseline starts at construction time, matching
// "no messages yet".
func NewWindow(now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	w := &Window{
		Now:       now,
		counts:    make(map[string]int),
		firstSeen: make(map[string]int),
	}
	w.started = w.Now()
	w.lastMsg = w.started
	return w
}

// Record inserts a message from actor at the current clock time.
func (w *Window) Record(actor string) {
	now := w.Now()
	w.events = append(w.events, Event{At: now, Actor: actor})
	w.total++
	if _, ok := w.firstSeen[actor]; !ok {
		w.firstSeen[actor] = len(w.firstSeen)
	}
	w.counts[actor]++
	w.lastMsg = now
}

// LastMessageAt reports when the most recent message arrived, or the window's
// construction time if none has.
func (w *Window) LastMessageAt() time.Time { return w.lastMsg }

// Len reports the number of retained events (post-eviction from the last
// mutation or query).
func (w *Window) Len() int { return len(w.events) }

// Query evicts events older than the horizon and returns the window view at
// now. Repeated calls with the same now and no intervening Record return
// identical results. Events timestamped at or after now (clock skew) are
// treated as age zero: they stay in the window and count toward the burst
// sub-window.
func (w *Window) Query(now time.Time) Result {
	w.evict(now)

	res := Result{
		PerMinute:   len(w.events),
		Total:       w.total,
		UniqueTotal: len(w.firstSeen),
	}

	uniqMin := make(map[string]struct{}, len(w.events))
	uniqSec := make(map[string]struct{})
	cutoff := now.Add(-burst)
	for _, ev := range w.events {
		uniqMin[ev.Actor] = struct{}{}
		if !ev.At.Before(cutoff) {
			res.PerSecond++
			uniqSec[ev.Actor] = struct{}{}
		}
	}
	res.UniquePerMinute = len(uniqMin)
	res.UniquePerSecond = len(uniqSec)
	res.TopActors = w.topActors()
	return res
}

// evict drops events older than the horizon from the front of the sequence.
// Insertion order coincides with time order, so only the front can expire.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-horizon)
	i := 0
	for i < len(w.events) && w.events[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}

// topActors returns up to topN chatters by lifetime count, ties broken by
// first-seen order.
func (w *Window) topActors() []ActorCount {
	if len(w.counts) == 0 {
		return nil
	}
	all := make([]ActorCount, 0, len(w.counts))
	for name, n := range w.counts {
		all = append(all, ActorCount{Name: name, Count: n})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return w.firstSeen[all[i].Name] < w.firstSeen[all[j].Name]
	})
	if len(all) > topN {
		all = all[:topN]
	}
	return all
}
