// Package logging provides structured logging for runproc.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-runproc/internal/config"
)

// NewLogger creates a new structured logger writing to stderr.
// Format should be "json" or "text".
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string, verbose bool) *slog.Logger {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(newHandler(os.Stderr, format, logLevel))
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(newHandler(w, format, parseLevel(level)))
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location for debug level
		AddSource: level == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// FromConfig builds a stderr logger from the configured format and level.
func FromConfig(cfg *config.Config) *slog.Logger {
	return NewLogger(cfg.LogFormat, cfg.LogLevel, false)
}

var (
	defaultOnce   sync.Once
	defaultLogger *slog.Logger
)

// Default returns the library logger used when a caller supplies none.
// It is built once from the RUNPROC_* environment, falling back to a
// warn-level text logger if the environment is invalid.
func Default() *slog.Logger {
	defaultOnce.Do(func() {
		cfg, err := config.FromEnv()
		if err != nil {
			defaultLogger = FromConfig(config.DefaultConfig())
			defaultLogger.Warn("invalid_environment_config", "error", err)
			return
		}
		defaultLogger = FromConfig(cfg)
	})
	return defaultLogger
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
