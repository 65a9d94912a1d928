// Package watcher enforces a wall-clock deadline on a running process.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// State represents the current state of a deadline watcher.
type State int32

const (
	// StateWaiting means the process is running within its deadline.
	StateWaiting State = iota

	// StateExpired means the deadline passed and the process was killed.
	StateExpired

	// StateDone means the watcher stopped without the deadline firing.
	StateDone
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateExpired:
		return "expired"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the watcher has stopped.
func (s State) IsTerminal() bool {
	return s == StateExpired || s == StateDone
}

// Config configures a Watcher.
type Config struct {
	// Deadline is measured from Start. Zero or negative disables it; the
	// watcher then only waits for exit or shutdown.
	Deadline time.Duration
	Start    time.Time

	// Exited is closed when the process has exited.
	Exited <-chan struct{}

	// OnTimeout runs before Kill. A panic in it is logged.
	OnTimeout func()
	Kill      func() error

	Logger *slog.Logger
}

// Watcher is the deadline-watching worker.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	state  atomic.Int32
	done   chan struct{}
}

// New creates a watcher in StateWaiting.
func New(cfg Config) *Watcher {
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run blocks until the process exits, ctx is cancelled, or the deadline
// passes. Only the last of these kills the process.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)

	var expired <-chan time.Time
	if w.cfg.Deadline > 0 {
		timer := time.NewTimer(max(w.cfg.Deadline-time.Since(w.cfg.Start), 0))
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-w.cfg.Exited:
		w.state.Store(int32(StateDone))
		return
	case <-ctx.Done():
		w.state.Store(int32(StateDone))
		return
	case <-expired:
	}

	// Exit or shutdown may have raced the timer.
	select {
	case <-w.cfg.Exited:
		w.state.Store(int32(StateDone))
		return
	default:
	}
	if ctx.Err() != nil {
		w.state.Store(int32(StateDone))
		return
	}

	w.state.Store(int32(StateExpired))
	w.logger.Warn("deadline_exceeded",
		"deadline", w.cfg.Deadline,
		"elapsed", time.Since(w.cfg.Start).Round(time.Millisecond),
	)

	w.timeoutCallback()

	if w.cfg.Kill != nil {
		if err := w.cfg.Kill(); err != nil {
			w.logger.Warn("deadline_kill_failed", "error", err)
		}
	}
}

func (w *Watcher) timeoutCallback() {
	if w.cfg.OnTimeout == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			w.logger.Warn("collaborator_failed",
				"hook", "on_timeout",
				"error", fmt.Sprint(p),
			)
		}
	}()
	w.cfg.OnTimeout()
}

// State returns the current state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Done is closed when Run has returned.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Join waits up to timeout for Run to return and reports whether it did.
func (w *Watcher) Join(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-w.done:
		return true
	case <-t.C:
		return false
	}
}
