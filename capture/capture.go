// Package capture invokes ffmpeg to grab single frames from a live stream. It
// enforces at-most-one in-flight capture for the snapshot-triggered path,
// keeps a bounded FIFO of output files, and can derive an in-memory thumbnail
// for embedding into snapshot records.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/onnwee/kick-pulse/telemetry"
)

// ErrToolMissing reports that the capture executable is gone. The operator
// asked for captures explicitly, so this is fatal for the whole session rather
// than a silent degradation.
var ErrToolMissing = errors.New("capture tool not found")

const (
	// DefaultTimeout bounds the primary frame grab.
	DefaultTimeout = 15 * time.Second
	// DefaultThumbTimeout bounds the thumbnail re-encode.
	DefaultThumbTimeout = 10 * time.Second

	stampLayout = "20060102-150405"
)

// Runner abstracts external tool invocation (for tests/mocks). Run returns
// the process's standard output.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard
	err := cmd.Run()
	return stdout.Bytes(), err
}

// ResolveTool locates the capture executable: an explicit path wins, otherwise
// PATH lookup.
func ResolveTool(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("%w: install ffmpeg or pass -ffmpeg-path", ErrToolMissing)
	}
	return path, nil
}

// Result is a completed capture: the file written and, when embedding is
// enabled and the re-encode succeeded, the base64 thumbnail bytes.
type Result struct {
	Path         string
	CreatedAt    time.Time
	ThumbnailB64 string
}

// Coordinator drives frame captures for one session.
type Coordinator struct {
	ToolPath   string
	StreamURL  string
	Dir        string
	NameStem   string // channel name or chatroom-<id>
	Format     string // jpg | png
	Max        int    // retained file cap; 0 = unlimited
	Embed      bool
	EmbedWidth int

	Timeout      time.Duration
	ThumbTimeout time.Duration
	Now          func() time.Time

	runner Runner
	slot   chan struct{} // at-most-one-in-flight for the snapshot path

	mu       sync.Mutex
	retained []string
}

// New returns a coordinator with default timeouts and the real exec runner.
func New() *Coordinator {
	return &Coordinator{
		Timeout:      DefaultTimeout,
		ThumbTimeout: DefaultThumbTimeout,
		Now:          time.Now,
		runner:       execRunner{},
		slot:         make(chan struct{}, 1),
	}
}

// NewWithRunner is New with a custom command runner.
func NewWithRunner(r Runner) *Coordinator {
	c := New()
	c.runner = r
	return c
}

// TryAcquire claims the single in-flight slot without blocking. Snapshot-
// triggered captures that fail to acquire are skipped for that tick.
func (c *Coordinator) TryAcquire() bool {
	select {
	case c.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the in-flight slot.
func (c *Coordinator) Release() {
	select {
	case <-c.slot:
	default:
		slog.Warn("capture slot release without acquire")
	}
}

// CaptureOnce grabs one frame to a timestamp-named file in Dir. Timeouts and
// non-zero exits return a nil Result with a non-nil error the caller can log
// and ignore; a vanished executable returns ErrToolMissing. The thumbnail
// re-encode is best-effort and never fails the primary capture.
func (c *Coordinator) CaptureOnce(ctx context.Context) (*Result, error) {
	now := c.Now()
	name := fmt.Sprintf("%s-%s.%s", c.NameStem, now.UTC().Format(stampLayout), c.Format)
	outPath := filepath.Join(c.Dir, name)

	args := []string{
		"-y",
		"-loglevel", "error",
		"-i", c.StreamURL,
		"-frames:v", "1",
		"-vf", "scale=-2:480",
		outPath,
	}
	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	start := time.Now()
	_, err := c.runner.Run(runCtx, c.ToolPath, args...)
	if obs := telemetry.CaptureDuration; obs != nil {
		obs.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if isToolMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrToolMissing, c.ToolPath)
		}
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("capture timed out after %s", c.Timeout)
		}
		return nil, fmt.Errorf("capture: %w", err)
	}

	c.retain(outPath)
	res := &Result{Path: outPath, CreatedAt: now}

	if c.Embed {
		if b64, err := c.thumbnail(ctx, outPath); err != nil {
			if isToolMissing(err) {
				return res, fmt.Errorf("%w: %s", ErrToolMissing, c.ToolPath)
			}
			slog.Debug("thumbnail encode failed", slog.Any("err", err), slog.String("path", outPath))
		} else {
			res.ThumbnailB64 = b64
		}
	}
	return res, nil
}

// thumbnail re-encodes the just-written frame to EmbedWidth and returns the
// mjpeg bytes base64-encoded from the tool's stdout.
func (c *Coordinator) thumbnail(ctx context.Context, framePath string) (string, error) {
	args := []string{
		"-loglevel", "error",
		"-i", framePath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", c.EmbedWidth),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
	runCtx, cancel := context.WithTimeout(ctx, c.ThumbTimeout)
	defer cancel()
	out, err := c.runner.Run(runCtx, c.ToolPath, args...)
	if err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", fmt.Errorf("thumbnail: empty output")
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// retain appends path to the bounded FIFO and deletes the oldest files beyond
// Max. Deletion is best-effort; a failed unlink never fails the capture.
func (c *Coordinator) retain(path string) {
	if c.Max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retained = append(c.retained, path)
	for len(c.retained) > c.Max {
		oldest := c.retained[0]
		c.retained = c.retained[1:]
		if err := os.Remove(oldest); err != nil {
			slog.Debug("retention delete failed", slog.String("path", oldest), slog.Any("err", err))
		}
	}
}

// Retained reports the currently tracked capture files, oldest first.
func (c *Coordinator) Retained() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.retained))
	copy(out, c.retained)
	return out
}

func isToolMissing(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound)
	}
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}
