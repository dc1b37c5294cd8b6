// Command kick-pulse records live Kick chat analytics. It:
//   - Connects to the Pusher chat feed for a channel or chatroom id.
//   - Maintains a sliding 60s window of message stats and renders a live
//     status line once per second.
//   - Appends session_start, message, and snapshot records to a JSONL log.
//   - Optionally captures stream frames with ffmpeg, on a timer or per
//     snapshot tick.
//   - Exposes /healthz, /status, and /metrics when HTTP_ADDR is set.
//
// Shutdown is graceful on SIGINT/SIGTERM; export-csv and export-messages
// convert a finished session log to CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/kick-pulse/archive"
	"github.com/onnwee/kick-pulse/capture"
	"github.com/onnwee/kick-pulse/config"
	"github.com/onnwee/kick-pulse/export"
	"github.com/onnwee/kick-pulse/kickapi"
	"github.com/onnwee/kick-pulse/server"
	"github.com/onnwee/kick-pulse/session"
	"github.com/onnwee/kick-pulse/sessionlog"
	"github.com/onnwee/kick-pulse/telemetry"
)

const version = "1.0.0"

const usageText = `Usage: kick-pulse <command> [options]

Commands:
  run              Connect and print live stats
  export-csv       Export session snapshots to CSV
  export-messages  Export chat messages to CSV

Run "kick-pulse <command> -h" for command options.`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()
	setupLogging()

	if len(args) == 0 {
		fmt.Println(usageText)
		return 1
	}
	switch args[0] {
	case "run":
		return runSession(args[1:])
	case "export-csv":
		return runExport("export-csv", args[1:], export.SnapshotsCSV)
	case "export-messages":
		return runExport("export-messages", args[1:], export.MessagesCSV)
	case "-h", "--help", "help":
		fmt.Println(usageText)
		return 0
	default:
		fmt.Printf("Unknown command %q\n\n%s\n", args[0], usageText)
		return 1
	}
}

// setupLogging configures the process logger. Level and format come from
// LOG_LEVEL and LOG_FORMAT; output goes to stderr so the live status line
// keeps stdout to itself.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

func runSession(args []string) int {
	opts := config.Load()

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&opts.Channel, "channel", opts.Channel, "Kick channel name")
	fs.Int64Var(&opts.ChatroomID, "chatroom-id", 0, "Chatroom id")
	fs.StringVar(&opts.Proxy, "proxy", opts.Proxy, "Proxy base url, e.g. http://localhost:3456")
	fs.StringVar(&opts.LogPath, "log", "", "Path to session log JSONL")
	durationSec := fs.Int("duration", 0, "Stop after N seconds")
	inactivitySec := fs.Int("inactivity", 0, "Stop after N seconds without messages")
	intervalSec := fs.Int("screenshot-interval", 0, "Capture a 480p screenshot every N seconds")
	fs.BoolVar(&opts.ScreenshotOnSnapshot, "screenshot-on-snapshot", false, "Capture a screenshot on each snapshot tick")
	fs.StringVar(&opts.ScreenshotDir, "screenshot-dir", "", "Directory to write screenshots")
	fs.IntVar(&opts.ScreenshotMax, "screenshot-max", 0, "Max screenshots to keep (older files are deleted)")
	fs.StringVar(&opts.ScreenshotFormat, "screenshot-format", opts.ScreenshotFormat, "Screenshot file format (jpg or png)")
	fs.BoolVar(&opts.ScreenshotEmbed, "screenshot-embed", false, "Embed base64 thumbnail in JSON snapshots")
	fs.IntVar(&opts.ScreenshotEmbedWidth, "screenshot-embed-width", opts.ScreenshotEmbedWidth, "Thumbnail width when embedding base64")
	fs.StringVar(&opts.StreamURL, "stream-url", "", "Explicit stream URL (m3u8) for screenshots")
	fs.StringVar(&opts.FFmpegPath, "ffmpeg-path", opts.FFmpegPath, "Explicit path to ffmpeg executable")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	opts.Channel = strings.ToLower(opts.Channel)
	opts.Duration = time.Duration(*durationSec) * time.Second
	opts.Inactivity = time.Duration(*inactivitySec) * time.Second
	opts.ScreenshotInterval = time.Duration(*intervalSec) * time.Second

	if err := opts.Validate(); err != nil {
		fmt.Println(err)
		return 1
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("kick-pulse", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		return 1
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := &kickapi.Client{ProxyBase: opts.Proxy}

	chatroomID := opts.ChatroomID
	var viewers *int
	if chatroomID == 0 {
		id, count, err := api.ResolveChannel(ctx, opts.Channel)
		if err != nil {
			fmt.Printf("Failed to resolve channel: %v\n", err)
			return 1
		}
		chatroomID = id
		viewers = count
	}

	stamp := time.Now().UTC().Format("20060102-150405")
	opts.ApplyDefaults(stamp)

	var capturer *capture.Coordinator
	if opts.CapturesEnabled() {
		streamURL := opts.StreamURL
		if streamURL == "" && opts.Channel != "" {
			if resolved, err := api.StreamURL(ctx, opts.Channel); err == nil {
				streamURL = resolved
			} else {
				slog.Debug("stream url resolution failed", slog.Any("err", err))
			}
		}
		if streamURL == "" {
			fmt.Println("Screenshot enabled but stream URL is missing. Use -stream-url.")
			return 1
		}
		toolPath, err := capture.ResolveTool(opts.FFmpegPath)
		if err != nil {
			fmt.Println("ffmpeg not found. Install it or pass -ffmpeg-path to the executable.")
			return 1
		}
		if err := os.MkdirAll(opts.ScreenshotDir, 0o755); err != nil {
			fmt.Printf("Failed to create screenshot directory: %v\n", err)
			return 1
		}
		capturer = capture.New()
		capturer.ToolPath = toolPath
		capturer.StreamURL = streamURL
		capturer.Dir = opts.ScreenshotDir
		capturer.NameStem = opts.SessionName()
		capturer.Format = opts.ScreenshotFormat
		capturer.Max = opts.ScreenshotMax
		capturer.Embed = opts.ScreenshotEmbed
		capturer.EmbedWidth = opts.ScreenshotEmbedWidth
	}

	logw, err := sessionlog.Create(opts.LogPath)
	if err != nil {
		fmt.Printf("Failed to open session log: %v\n", err)
		return 1
	}
	defer func() {
		if err := logw.Close(); err != nil {
			slog.Error("session log close failed", slog.Any("err", err))
		}
	}()
	fmt.Printf("Logging to %s\n", logw.Path())

	// Optional Postgres mirror; the session runs fine without it.
	store, err := archive.Connect()
	if err != nil {
		slog.Warn("archive unavailable, continuing without mirror", slog.Any("err", err))
		store = nil
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("archive close failed", slog.Any("err", err))
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		slog.Warn("archive migration failed, continuing without mirror", slog.Any("err", err))
		store = nil
	}

	sess := session.New(opts, api, logw, store, capturer, chatroomID, viewers)

	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		go func() {
			if err := server.Start(ctx, sess, addr); err != nil {
				slog.Error("http server exited", slog.Any("err", err))
			}
		}()
	}

	cause := sess.Run(ctx)
	switch {
	case cause == nil:
		fmt.Println("\nStopping...")
		return 0
	case errors.Is(cause, session.ErrDurationElapsed):
		fmt.Println("\nConfigured duration reached, stopping.")
		return 0
	case errors.Is(cause, session.ErrInactivityElapsed):
		fmt.Println("\nNo messages within the inactivity window, stopping.")
		return 0
	case errors.Is(cause, session.ErrCaptureToolLost):
		fmt.Println("\nffmpeg not found. Install ffmpeg or disable screenshots.")
		return 1
	default:
		fmt.Printf("\nSession ended: %v\n", cause)
		return 1
	}
}

// runExport handles both export subcommands; fn is the converter to apply.
func runExport(name string, args []string, fn func(input, output string) (string, error)) int {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	input := fs.String("input", "", "Session JSONL input")
	output := fs.String("output", "", "CSV output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *input == "" {
		fmt.Println("-input is required")
		fs.Usage()
		return 1
	}
	out, err := fn(*input, *output)
	if err != nil {
		if errors.Is(err, export.ErrNoSnapshots) {
			fmt.Println("No snapshot data found")
		} else if errors.Is(err, export.ErrNoMessages) {
			fmt.Println("No message data found")
		} else {
			fmt.Printf("Export failed: %v\n", err)
		}
		return 1
	}
	fmt.Printf("Wrote %s\n", out)
	return 0
}
