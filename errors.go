package runproc

import (
	"errors"
	"fmt"
	"time"

	"github.com/randomizedcoder/go-runproc/internal/config"
)

var (
	// ErrNotStarted is returned by operations that need a spawned process.
	ErrNotStarted = errors.New("runproc: process not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("runproc: process already started")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("runproc: timeout exceeded")

	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("runproc: invalid configuration")

	// ErrNoTerminal is returned by terminal operations on a process
	// running with pipes.
	ErrNoTerminal = errors.New("runproc: process has no terminal")

	// ErrInterrupted is wrapped by Wait when the exit code says the child
	// was interrupted from the keyboard.
	ErrInterrupted = errors.New("runproc: process interrupted")
)

// TimeoutError reports a deadline that passed before the process exited.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	// Drained is how many lines were flushed to the echo sink after the
	// deadline passed.
	Drained int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process timed out after %s: %s", e.Timeout, e.Command)
}

// Is lets errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ConfigError reports a command that cannot be run as configured.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("runproc: invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidConfig) match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ExitError is returned by Run with check enabled when the command exits
// non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
}

func configError(err error) error {
	var cerr *config.CommandError
	if errors.As(err, &cerr) {
		return &ConfigError{Field: cerr.Field, Reason: cerr.Message}
	}
	return &ConfigError{Field: "command", Reason: err.Error()}
}
