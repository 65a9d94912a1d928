package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/randomizedcoder/go-runproc/internal/config"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},        // Default
		{"invalid", slog.LevelInfo}, // Default for unknown
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := parseLevel(tc.input)
			if result != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "JSON", "", "invalid"} {
		t.Run(format, func(t *testing.T) {
			if NewLogger(format, "info", false) == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, "json", "info")
	logger.Info("process_started", "pid", 42)

	output := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("Expected JSON format, got: %s", output)
	}
	if !strings.Contains(output, `"pid":42`) {
		t.Errorf("Expected pid in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "warn")

	logger.Info("info msg")
	logger.Warn("warn msg")

	output := buf.String()
	if strings.Contains(output, "info msg") {
		t.Error("Warn level should not log info messages")
	}
	if !strings.Contains(output, "warn msg") {
		t.Error("Warn level should log warn messages")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if FromConfig(cfg) == nil {
		t.Fatal("FromConfig returned nil")
	}
}

func TestDefault_Singleton(t *testing.T) {
	a := Default()
	b := Default()
	if a == nil || a != b {
		t.Error("Default should return the same non-nil logger")
	}
}

func TestDiscard(t *testing.T) {
	// Should not panic
	Discard().Error("dropped")
}

// =============================================================================
// LineLogger
// =============================================================================

func TestLineLogger_HandleLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "info")

	h := NewLineLogger(logger, slog.LevelInfo, "pid", 7)
	h.HandleLine("hello")

	output := buf.String()
	if !strings.Contains(output, "process_output") || !strings.Contains(output, "line=hello") {
		t.Errorf("unexpected log output: %s", output)
	}
	if !strings.Contains(output, "pid=7") {
		t.Errorf("expected attrs in output: %s", output)
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}
}

func TestLineLogger_Truncation(t *testing.T) {
	h := NewLineLogger(Discard(), slog.LevelDebug)

	h.HandleLine(strings.Repeat("x", MaxLineLength+100))

	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], "...(truncated)") {
		t.Error("Truncated line should end with '...(truncated)'")
	}
}

func TestLineLogger_TruncationKeepsRunesWhole(t *testing.T) {
	h := NewLineLogger(Discard(), slog.LevelDebug)

	// The euro sign straddles the cut.
	h.HandleLine(strings.Repeat("x", MaxLineLength-1) + "€" + strings.Repeat("y", 10))

	got := h.RecentLines(1)[0]
	if !utf8.ValidString(got) {
		t.Errorf("truncated line is not valid UTF-8: %q", got[MaxLineLength-4:])
	}
	if want := strings.Repeat("x", MaxLineLength-1) + "...(truncated)"; got != want {
		t.Errorf("truncated line has length %d, want %d", len(got), len(want))
	}
}

func TestLineLogger_RecentLines(t *testing.T) {
	testCases := []struct {
		name  string
		added int
		n     int
		want  []string
	}{
		{"empty", 0, 10, []string{}},
		{"fewer than asked", 2, 5, []string{"line0", "line1"}},
		{"last three", 5, 3, []string{"line2", "line3", "line4"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewLineLogger(Discard(), slog.LevelDebug)
			for i := 0; i < tc.added; i++ {
				h.HandleLine("line" + string(rune('0'+i)))
			}
			if diff := cmp.Diff(tc.want, h.RecentLines(tc.n)); diff != "" {
				t.Errorf("RecentLines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLineLogger_CircularBuffer(t *testing.T) {
	h := NewLineLogger(Discard(), slog.LevelDebug)

	for i := 0; i < MaxBufferedLines+50; i++ {
		h.HandleLine(strings.Repeat("x", i+1))
	}

	lines := h.RecentLines(MaxBufferedLines + 10)
	if len(lines) != MaxBufferedLines {
		t.Fatalf("Got %d lines, want %d", len(lines), MaxBufferedLines)
	}
	if got := len(lines[len(lines)-1]); got != MaxBufferedLines+50 {
		t.Errorf("newest line length = %d, want %d", got, MaxBufferedLines+50)
	}
}
