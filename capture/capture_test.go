package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptRunner fakes the external tool. The primary invocation creates the
// output file (last arg); thumbnail invocations (ending in "-") return Stdout.
type scriptRunner struct {
	mu       sync.Mutex
	calls    [][]string
	err      error
	thumbErr error
	stdout   []byte
	delay    time.Duration
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (r *scriptRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()

	last := args[len(args)-1]
	if last == "-" {
		if r.thumbErr != nil {
			return nil, r.thumbErr
		}
		return r.stdout, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, os.WriteFile(last, []byte("frame"), 0o644)
}

func newTestCoordinator(t *testing.T, r Runner) *Coordinator {
	t.Helper()
	c := New()
	c.ToolPath = "ffmpeg"
	c.StreamURL = "https://example.com/live.m3u8"
	c.Dir = t.TempDir()
	c.NameStem = "somechannel"
	c.Format = "jpg"
	c.runner = r
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	c.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return c
}

func TestCaptureOnceWritesTimestampedFile(t *testing.T) {
	r := &scriptRunner{}
	c := newTestCoordinator(t, r)

	res, err := c.CaptureOnce(context.Background())
	if err != nil {
		t.Fatalf("CaptureOnce: %v", err)
	}
	want := filepath.Join(c.Dir, "somechannel-20250601-120001.jpg")
	if res.Path != want {
		t.Errorf("path = %q, want %q", res.Path, want)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("output file missing: %v", err)
	}
	if res.ThumbnailB64 != "" {
		t.Error("thumbnail produced without embed enabled")
	}
}

func TestRetentionEvictsOldest(t *testing.T) {
	r := &scriptRunner{}
	c := newTestCoordinator(t, r)
	c.Max = 3

	var paths []string
	for i := 0; i < 4; i++ {
		res, err := c.CaptureOnce(context.Background())
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		paths = append(paths, res.Path)
	}

	if _, err := os.Stat(paths[0]); !os.IsNotExist(err) {
		t.Errorf("oldest capture %s should be deleted, stat err = %v", paths[0], err)
	}
	for _, p := range paths[1:] {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("capture %s should be retained: %v", p, err)
		}
	}
	if got := len(c.Retained()); got != 3 {
		t.Errorf("retained = %d, want 3", got)
	}
}

func TestRetentionDeleteFailureSwallowed(t *testing.T) {
	r := &scriptRunner{}
	c := newTestCoordinator(t, r)
	c.Max = 1

	res, err := c.CaptureOnce(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	// Delete out from under the coordinator so eviction's unlink fails.
	if err := os.Remove(res.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := c.CaptureOnce(context.Background()); err != nil {
		t.Errorf("capture after failed eviction delete: %v", err)
	}
}

func TestThumbnailEmbedded(t *testing.T) {
	r := &scriptRunner{stdout: []byte{0xff, 0xd8, 0xff}}
	c := newTestCoordinator(t, r)
	c.Embed = true
	c.EmbedWidth = 160

	res, err := c.CaptureOnce(context.Background())
	if err != nil {
		t.Fatalf("CaptureOnce: %v", err)
	}
	if res.ThumbnailB64 == "" {
		t.Fatal("expected embedded thumbnail")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) != 2 {
		t.Fatalf("expected 2 tool invocations, got %d", len(r.calls))
	}
	thumbArgs := fmt.Sprint(r.calls[1])
	if want := "scale=160:-2"; !contains(r.calls[1], want) {
		t.Errorf("thumbnail args %s missing %q", thumbArgs, want)
	}
}

func TestThumbnailFailureDoesNotFailCapture(t *testing.T) {
	r := &scriptRunner{thumbErr: errors.New("encode boom")}
	c := newTestCoordinator(t, r)
	c.Embed = true
	c.EmbedWidth = 160

	res, err := c.CaptureOnce(context.Background())
	if err != nil {
		t.Fatalf("primary capture must survive thumbnail failure: %v", err)
	}
	if res.ThumbnailB64 != "" {
		t.Error("thumbnail should be empty on encode failure")
	}
}

func TestToolMissingIsFatalError(t *testing.T) {
	r := &scriptRunner{err: &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}}
	c := newTestCoordinator(t, r)
	if _, err := c.CaptureOnce(context.Background()); !errors.Is(err, ErrToolMissing) {
		t.Errorf("err = %v, want ErrToolMissing", err)
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	r := &scriptRunner{delay: 200 * time.Millisecond}
	c := newTestCoordinator(t, r)
	c.Timeout = 20 * time.Millisecond
	_, err := c.CaptureOnce(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errors.Is(err, ErrToolMissing) {
		t.Error("timeout must not be classified as tool-missing")
	}
}

func TestAtMostOneInFlight(t *testing.T) {
	r := &scriptRunner{delay: 50 * time.Millisecond}
	c := newTestCoordinator(t, r)

	// Hammer the snapshot-trigger path far faster than a capture completes.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.TryAcquire() {
				return // skipped, as the scheduler would
			}
			defer c.Release()
			_, _ = c.CaptureOnce(context.Background())
		}()
	}
	wg.Wait()
	if max := r.maxSeen.Load(); max > 1 {
		t.Errorf("observed %d concurrent tool invocations, want at most 1", max)
	}
}

func TestResolveTool(t *testing.T) {
	if path, err := ResolveTool("/opt/ffmpeg"); err != nil || path != "/opt/ffmpeg" {
		t.Errorf("explicit path: got %q, %v", path, err)
	}
	t.Setenv("PATH", t.TempDir())
	if _, err := ResolveTool(""); !errors.Is(err, ErrToolMissing) {
		t.Errorf("empty PATH: err = %v, want ErrToolMissing", err)
	}
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
