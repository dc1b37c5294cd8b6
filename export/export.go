// Package export converts session JSONL logs into CSV files for spreadsheet
// tools. Files are written with a UTF-8 BOM so Excel detects the encoding.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/onnwee/kick-pulse/sessionlog"
)

var (
	ErrNoSnapshots = errors.New("no snapshot data found")
	ErrNoMessages  = errors.New("no message data found")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SnapshotsCSV writes every snapshot record from the JSONL file at inputPath
// as one CSV row. An empty outputPath derives the destination by swapping the
// input's extension for .csv. Returns the path written.
func SnapshotsCSV(inputPath, outputPath string) (string, error) {
	if outputPath == "" {
		outputPath = swapExt(inputPath, ".csv")
	}

	var rows []sessionlog.Snapshot
	err := scanRecords(inputPath, sessionlog.TypeSnapshot, func(line []byte) error {
		var snap sessionlog.Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return err
		}
		rows = append(rows, snap)
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrNoSnapshots
	}

	header := []string{
		"timestamp",
		"channel",
		"messages_per_minute",
		"messages_per_second",
		"unique_per_minute",
		"unique_per_second",
		"total_messages",
		"unique_total",
		"viewer_count",
		"screenshot_path",
	}
	return outputPath, writeCSV(outputPath, header, len(rows), func(i int) []string {
		s := rows[i]
		viewers := ""
		if s.ViewerCount != nil {
			viewers = strconv.Itoa(*s.ViewerCount)
		}
		shot := ""
		if s.ScreenshotPath != nil {
			shot = *s.ScreenshotPath
		}
		return []string{
			s.TS,
			s.Channel,
			strconv.Itoa(s.MessagesPerMinute),
			strconv.Itoa(s.MessagesPerSecond),
			strconv.Itoa(s.UniquePerMinute),
			strconv.Itoa(s.UniquePerSecond),
			strconv.Itoa(s.TotalMessages),
			strconv.Itoa(s.UniqueTotal),
			viewers,
			shot,
		}
	})
}

// MessagesCSV writes every chat message record from the JSONL file at
// inputPath as one CSV row. An empty outputPath derives the destination as
// "<stem>-messages.csv" beside the input. Returns the path written.
func MessagesCSV(inputPath, outputPath string) (string, error) {
	if outputPath == "" {
		stem := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
		outputPath = stem + "-messages.csv"
	}

	var rows []sessionlog.Message
	err := scanRecords(inputPath, sessionlog.TypeMessage, func(line []byte) error {
		var msg sessionlog.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return err
		}
		rows = append(rows, msg)
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrNoMessages
	}

	header := []string{"timestamp", "channel", "username", "message"}
	return outputPath, writeCSV(outputPath, header, len(rows), func(i int) []string {
		m := rows[i]
		return []string{m.TS, m.Channel, m.Username, m.Message}
	})
}

// scanRecords calls fn with every JSONL line whose type field matches want.
// Blank lines are skipped; lines of other types are ignored.
func scanRecords(path, want string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &head); err != nil {
			return fmt.Errorf("parse line %d: %w", lineNo, err)
		}
		if head.Type != want {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return fmt.Errorf("parse line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read session log: %w", err)
	}
	return nil
}

func writeCSV(path string, header []string, n int, row func(i int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}

func swapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
