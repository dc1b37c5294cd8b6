package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/kick-pulse/archive"
	"github.com/onnwee/kick-pulse/sessionlog"
	"github.com/onnwee/kick-pulse/telemetry"
)

// runScheduler is the fixed-cadence snapshot loop: query the window, render
// the status line, persist a snapshot record, maybe trigger a capture, then
// evaluate stop conditions. wg tracks the capture goroutines this loop spawns
// so Run joins them before returning.
func (s *Session) runScheduler(ctx context.Context, cancel context.CancelCauseFunc, wg *sync.WaitGroup) {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.tick(ctx, cancel, wg)
	}
}

func (s *Session) tick(ctx context.Context, cancel context.CancelCauseFunc, wg *sync.WaitGroup) {
	now := s.now()

	s.mu.Lock()
	res := s.window.Query(now)
	retained := s.window.Len()
	lastMsg := s.window.LastMessageAt()
	viewers := s.viewers
	shot := s.latestShot
	thumb := s.latestThumb
	s.mu.Unlock()

	telemetry.SetWindowSize(retained)

	fmt.Fprint(s.out, "\r"+renderStatus(res, viewers, s.useColor)+"    ")

	snap := sessionlog.Snapshot{
		Type:              sessionlog.TypeSnapshot,
		TS:                sessionlog.Timestamp(now),
		Channel:           s.channelLabel(),
		MessagesPerMinute: res.PerMinute,
		MessagesPerSecond: res.PerSecond,
		UniquePerMinute:   res.UniquePerMinute,
		UniquePerSecond:   res.UniquePerSecond,
		TotalMessages:     res.Total,
		UniqueTotal:       res.UniqueTotal,
		ViewerCount:       viewers,
		ScreenshotPath:    shot,
	}
	if s.opts.ScreenshotEmbed {
		snap.ScreenshotBase64 = thumb
	}
	if err := s.log.Write(snap); err != nil {
		slog.Warn("snapshot record write failed", slog.Any("err", err))
	} else if telemetry.SnapshotsWritten != nil {
		telemetry.SnapshotsWritten.Inc()
	}
	s.store.InsertSnapshot(ctx, s.id, s.channelLabel(), archive.SnapshotRow{
		TS:                now,
		MessagesPerMinute: res.PerMinute,
		MessagesPerSecond: res.PerSecond,
		UniquePerMinute:   res.UniquePerMinute,
		UniquePerSecond:   res.UniquePerSecond,
		TotalMessages:     res.Total,
		UniqueTotal:       res.UniqueTotal,
		ViewerCount:       viewers,
		ScreenshotPath:    shot,
	})

	if s.capturer != nil && s.opts.ScreenshotOnSnapshot {
		if s.capturer.TryAcquire() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.capturer.Release()
				s.captureOnce(ctx, cancel)
			}()
		} else if telemetry.CapturesSkipped != nil {
			telemetry.CapturesSkipped.Inc()
		}
	}

	// Stop conditions; inactivity wins when both fire on the same tick.
	if s.opts.Inactivity > 0 && now.Sub(lastMsg) >= s.opts.Inactivity {
		cancel(ErrInactivityElapsed)
		return
	}
	if s.opts.Duration > 0 && now.Sub(s.startedAt) >= s.opts.Duration {
		cancel(ErrDurationElapsed)
	}
}
