package logging

import (
	"context"
	"log/slog"
	"sync"
	"unicode/utf8"
)

const (
	// MaxLineLength is the maximum length of a single logged line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for summaries.
	MaxBufferedLines = 100
)

// LineLogger echoes process output through slog and keeps the most recent
// lines in a ring buffer.
type LineLogger struct {
	logger *slog.Logger
	level  slog.Level
	attrs  []any

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	count  int
	mu     sync.Mutex
}

// NewLineLogger creates a line logger that logs each line at level with
// the given attributes attached.
func NewLineLogger(logger *slog.Logger, level slog.Level, attrs ...any) *LineLogger {
	return &LineLogger{
		logger: logger,
		level:  level,
		attrs:  attrs,
		buffer: make([]string, MaxBufferedLines),
	}
}

// HandleLine records and logs a single line of output.
func (h *LineLogger) HandleLine(line string) {
	line = truncate(line)

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.count++
	h.mu.Unlock()

	args := append([]any{"line", line}, h.attrs...)
	h.logger.Log(context.Background(), h.level, "process_output", args...)
}

// truncate cuts line to at most MaxLineLength bytes without splitting a
// rune.
func truncate(line string) string {
	if len(line) <= MaxLineLength {
		return line
	}
	cut := MaxLineLength
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "...(truncated)"
}

// Count returns how many lines have been handled.
func (h *LineLogger) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *LineLogger) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}
	if n > h.count {
		n = h.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}

	return lines
}
