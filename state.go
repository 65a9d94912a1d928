package runproc

import (
	"slices"

	"github.com/randomizedcoder/go-runproc/internal/watcher"
)

// State is where a Process is in its lifecycle.
type State int

const (
	// StateNotStarted is the state before Start.
	StateNotStarted State = iota

	// StateRunning means the process has not exited yet.
	StateRunning

	// StateDraining means the process has exited but its output is still
	// being read.
	StateDraining

	// StateTerminated means the process has exited and end of stream has
	// been queued.
	StateTerminated
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once nothing more will happen to the process.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// DeadlineState is the state of a process's deadline.
type DeadlineState = watcher.State

const (
	// DeadlineWaiting means the deadline has not passed, or there is none.
	DeadlineWaiting = watcher.StateWaiting
	// DeadlineExpired means the deadline passed and the tree was killed.
	DeadlineExpired = watcher.StateExpired
	// DeadlineDone means the process ended before its deadline.
	DeadlineDone = watcher.StateDone
)

// interruptCodes are the exit codes of a child stopped by Ctrl-C: 128+SIGINT
// on POSIX shells and STATUS_CONTROL_C_EXIT on Windows.
var interruptCodes = []int{130, 0xC000013A}

// DefaultIsInterrupt reports whether code is a keyboard-interrupt exit code.
func DefaultIsInterrupt(code int) bool {
	return slices.Contains(interruptCodes, code)
}
