// Package session owns a live recording run: it starts and stops the feed
// listener, viewer-count poller, snapshot scheduler, and optional capture
// loop, and holds the shared mutable state (window, viewer count, latest
// capture) behind a single mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/onnwee/kick-pulse/archive"
	"github.com/onnwee/kick-pulse/capture"
	"github.com/onnwee/kick-pulse/chat"
	"github.com/onnwee/kick-pulse/config"
	"github.com/onnwee/kick-pulse/kickapi"
	"github.com/onnwee/kick-pulse/sessionlog"
	"github.com/onnwee/kick-pulse/stats"
	"github.com/onnwee/kick-pulse/telemetry"
)

// Stop causes. Duration, inactivity, and interruption are orderly stops; the
// others are in-flight failures that end the session early.
var (
	ErrDurationElapsed   = errors.New("configured duration elapsed")
	ErrInactivityElapsed = errors.New("inactivity threshold elapsed")
	ErrFeedLost          = errors.New("chat feed connection lost")
	ErrCaptureToolLost   = errors.New("capture tool disappeared mid-session")
)

const viewerPollEvery = 20 * time.Second

// feed abstracts the chat listener so tests can drive messages directly.
type feed interface {
	Run(ctx context.Context) error
}

// Session is one recording run.
type Session struct {
	// FeedURL overrides the Pusher endpoint (tests). Empty means the default.
	FeedURL string

	opts       *config.Options
	api        *kickapi.Client
	log        *sessionlog.Writer
	store      *archive.Store
	capturer   *capture.Coordinator // nil when captures are off
	chatroomID int64

	id        string
	startedAt time.Time

	// test seams; New sets real defaults
	now       func() time.Time
	tickEvery time.Duration
	out       io.Writer
	useColor  bool
	feed      feed

	mu          sync.Mutex
	window      *stats.Window
	viewers     *int
	latestShot  *string
	latestThumb *string
}

// New assembles a session. initialViewers carries the count learned during
// channel resolution, if any. capturer may be nil when captures are disabled.
func New(opts *config.Options, api *kickapi.Client, logw *sessionlog.Writer, store *archive.Store, capturer *capture.Coordinator, chatroomID int64, initialViewers *int) *Session {
	s := &Session{
		opts:       opts,
		api:        api,
		log:        logw,
		store:      store,
		capturer:   capturer,
		chatroomID: chatroomID,
		id:         uuid.NewString(),
		now:        time.Now,
		tickEvery:  time.Second,
		out:        os.Stdout,
		useColor:   isatty.IsTerminal(os.Stdout.Fd()),
		viewers:    initialViewers,
	}
	s.window = stats.NewWindow(func() time.Time { return s.now() })
	return s
}

// ID returns the session's UUID, written into the session_start record.
func (s *Session) ID() string { return s.id }

// channelLabel is the channel field written into every log record.
func (s *Session) channelLabel() string {
	if s.opts.Channel != "" {
		return s.opts.Channel
	}
	return "manual"
}

// Run executes the session until a stop condition fires or ctx is canceled
// externally. The returned error is the stop cause: nil for an external
// interrupt, one of the sentinel errors above otherwise.
func (s *Session) Run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	s.startedAt = s.now()
	start := sessionlog.Start{
		Type:       sessionlog.TypeSessionStart,
		TS:         sessionlog.Timestamp(s.startedAt),
		Channel:    s.channelLabel(),
		ChatroomID: s.chatroomID,
		SessionID:  s.id,
	}
	if err := s.log.Write(start); err != nil {
		return fmt.Errorf("write session_start: %w", err)
	}

	if s.feed == nil {
		s.feed = &chat.Listener{
			URL:        s.FeedURL,
			ChatroomID: s.chatroomID,
			OnMessage:  func(m chat.Message) { s.handleMessage(ctx, m) },
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.feed.Run(ctx); err != nil && ctx.Err() == nil {
			cancel(fmt.Errorf("%w: %v", ErrFeedLost, err))
		}
	}()

	if s.opts.Channel != "" && s.api != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runViewerPoller(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runScheduler(ctx, cancel, &wg)
	}()

	if s.capturer != nil && s.opts.ScreenshotInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runCaptureLoop(ctx, cancel)
		}()
	}

	if s.opts.Duration > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.Duration):
				cancel(ErrDurationElapsed)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	cause := context.Cause(ctx)
	if errors.Is(cause, context.Canceled) {
		// External interruption (signal) rather than an internal stop.
		return nil
	}
	return cause
}

// handleMessage records one chat message: aggregate under the lock first so
// counts stay correct even if the sink write fails, then append the log
// record and mirror it.
func (s *Session) handleMessage(ctx context.Context, m chat.Message) {
	now := s.now()
	s.mu.Lock()
	s.window.Record(m.Username)
	s.mu.Unlock()

	if telemetry.MessagesIngested != nil {
		telemetry.MessagesIngested.Inc()
	}

	rec := sessionlog.Message{
		Type:     sessionlog.TypeMessage,
		TS:       sessionlog.Timestamp(now),
		Channel:  s.channelLabel(),
		Username: m.Username,
		Message:  m.Content,
	}
	if err := s.log.Write(rec); err != nil {
		slog.Warn("message record write failed", slog.Any("err", err))
	}
	s.store.InsertMessage(ctx, s.id, s.channelLabel(), m.Username, m.Content, now)
}

// runViewerPoller refreshes the viewer count every 20s. Failures reset the
// value to unknown rather than retaining a stale count.
func (s *Session) runViewerPoller(ctx context.Context) {
	refresh := func() {
		count, err := s.api.ViewerCount(ctx, s.opts.Channel)
		if err != nil {
			slog.Debug("viewer refresh failed", slog.Any("err", err))
			count = nil
		}
		s.mu.Lock()
		s.viewers = count
		s.mu.Unlock()
		telemetry.SetViewers(count)
	}

	refresh()
	ticker := time.NewTicker(viewerPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// runCaptureLoop drives fixed-interval captures. Captures run serially on
// this timer; the on-snapshot skip rule does not apply here (the two trigger
// modes are mutually exclusive by configuration).
func (s *Session) runCaptureLoop(ctx context.Context, cancel context.CancelCauseFunc) {
	s.captureOnce(ctx, cancel)
	ticker := time.NewTicker(s.opts.ScreenshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.captureOnce(ctx, cancel)
		}
	}
}

// captureOnce runs one capture and folds the result into shared state. A
// vanished tool stops the whole session; other failures cost one data point.
func (s *Session) captureOnce(ctx context.Context, cancel context.CancelCauseFunc) {
	res, err := s.capturer.CaptureOnce(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrToolMissing) {
			cancel(ErrCaptureToolLost)
			return
		}
		if telemetry.CapturesFailed != nil {
			telemetry.CapturesFailed.Inc()
		}
		slog.Warn("capture failed", slog.Any("err", err))
		return
	}
	if telemetry.CapturesSucceeded != nil {
		telemetry.CapturesSucceeded.Inc()
	}

	s.mu.Lock()
	path := res.Path
	s.latestShot = &path
	if s.opts.ScreenshotEmbed {
		// Never pair a fresh screenshot with a stale thumbnail.
		s.latestThumb = nil
		if res.ThumbnailB64 != "" {
			thumb := res.ThumbnailB64
			s.latestThumb = &thumb
		}
	}
	s.mu.Unlock()
}
