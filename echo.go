package runproc

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-runproc/internal/logging"
)

// EchoFunc receives each line Wait drains from the output queue.
type EchoFunc func(line string)

// EchoNone discards lines.
func EchoNone(string) {}

// EchoStdout prints each line to standard output.
func EchoStdout(line string) {
	fmt.Fprintln(os.Stdout, line)
}

// EchoTo prints each line to w.
func EchoTo(w io.Writer) EchoFunc {
	return func(line string) {
		fmt.Fprintln(w, line)
	}
}

// LineLogger logs lines through slog and keeps the most recent ones.
type LineLogger = logging.LineLogger

// NewLineLogger returns a LineLogger logging at level with attrs attached.
func NewLineLogger(logger *slog.Logger, level slog.Level, attrs ...any) *LineLogger {
	return logging.NewLineLogger(logger, level, attrs...)
}

// EchoLogger logs each line through ll.
func EchoLogger(ll *LineLogger) EchoFunc {
	return ll.HandleLine
}

// Echo maps the boolean form onto a sink: true prints to standard output,
// false discards.
func Echo(on bool) EchoFunc {
	if on {
		return EchoStdout
	}
	return EchoNone
}
