// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// setup for the recorder.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesIngested  prometheus.Counter
	MalformedFrames   prometheus.Counter
	SnapshotsWritten  prometheus.Counter
	CapturesSucceeded prometheus.Counter
	CapturesFailed    prometheus.Counter
	CapturesSkipped   prometheus.Counter

	// Histograms (seconds)
	CaptureDuration prometheus.Observer

	// Gauges
	ViewerGauge      prometheus.Gauge
	WindowSizeGauge  prometheus.Gauge
	ViewerKnownGauge prometheus.Gauge // 1=last refresh succeeded, 0=unknown
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_ingested_total", Help: "Chat messages recorded into the window"})
		MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_malformed_frames_total", Help: "Feed frames dropped as unparseable"})
		SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "session_snapshots_written_total", Help: "Snapshot records appended to the session log"})
		CapturesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_succeeded_total", Help: "Stream frame captures that completed"})
		CapturesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_failed_total", Help: "Stream frame captures that failed or timed out"})
		CapturesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_skipped_total", Help: "Snapshot-triggered captures skipped because one was in flight"})
		CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "capture_duration_seconds", Help: "Frame capture duration seconds", Buckets: prometheus.DefBuckets})
		ViewerGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "channel_viewers", Help: "Last known viewer count"})
		WindowSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "window_events", Help: "Events retained in the 60s window"})
		ViewerKnownGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "channel_viewers_known", Help: "Whether the viewer count is current (1) or unknown (0)"})
	})
}

// SetViewers records the last viewer refresh result. A nil count means the
// refresh failed or the channel is offline.
func SetViewers(count *int) {
	if ViewerGauge == nil {
		return
	}
	if count == nil {
		ViewerKnownGauge.Set(0)
		return
	}
	ViewerKnownGauge.Set(1)
	ViewerGauge.Set(float64(*count))
}

// SetWindowSize records the retained window length.
func SetWindowSize(n int) {
	if WindowSizeGauge != nil {
		WindowSizeGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
