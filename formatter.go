package runproc

import (
	"fmt"
	"sync"
	"time"
)

// Formatter sees a process's output on the reader goroutine. Begin and End
// run once each per run; Transform runs once per line. Errors and panics
// are logged and otherwise ignored; a panicking Transform passes the line
// through unchanged.
type Formatter interface {
	Begin() error
	Transform(line string) string
	End() error
}

// NullFormatter passes lines through unchanged.
type NullFormatter struct{}

func (NullFormatter) Begin() error                 { return nil }
func (NullFormatter) Transform(line string) string { return line }
func (NullFormatter) End() error                   { return nil }

// TimeDeltaFormatter prefixes each line with the seconds elapsed since
// Begin, as in "[1.23] text".
type TimeDeltaFormatter struct {
	mu    sync.Mutex
	start time.Time
	now   func() time.Time
}

// NewTimeDeltaFormatter returns a formatter timed from Begin.
func NewTimeDeltaFormatter() *TimeDeltaFormatter {
	return &TimeDeltaFormatter{now: time.Now}
}

func (f *TimeDeltaFormatter) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.start = f.clock()
	return nil
}

func (f *TimeDeltaFormatter) Transform(line string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.start.IsZero() {
		f.start = f.clock()
	}
	elapsed := f.clock().Sub(f.start).Seconds()
	return fmt.Sprintf("[%.2f] %s", elapsed, line)
}

func (f *TimeDeltaFormatter) End() error { return nil }

func (f *TimeDeltaFormatter) clock() time.Time {
	if f.now == nil {
		return time.Now()
	}
	return f.now()
}
