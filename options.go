package runproc

import (
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-runproc/diag"
	"github.com/randomizedcoder/go-runproc/internal/config"
	"github.com/randomizedcoder/go-runproc/registry"
)

// Command is either a shell script or an argument list.
type Command = config.Command

// Script returns a command run through the system shell.
func Script(s string) Command {
	return Command{Script: s}
}

// Args returns a command run directly unless it contains a shell operator.
func Args(args ...string) Command {
	return Command{Args: args}
}

// ShellMode selects whether a command runs through the system shell.
type ShellMode = config.ShellMode

const (
	ShellAuto   = config.ShellAuto
	ShellAlways = config.ShellAlways
	ShellNever  = config.ShellNever
)

// NoTimeout makes line retrieval wait until a line or end of stream
// arrives.
const NoTimeout time.Duration = -1

// ProcessInfo describes a process whose deadline has passed.
type ProcessInfo struct {
	PID     int
	Command string
	Elapsed time.Duration
	// Tree is a printable snapshot of the process and its descendants.
	Tree string
}

// Options configures a Process. The zero value starts the command
// immediately, with pipes, no deadline, and the shell chosen from the
// command itself.
type Options struct {
	Dir   string
	Shell ShellMode
	// Env is appended to the parent environment.
	Env []string

	// DeferStart leaves the process unstarted until Start is called.
	DeferStart bool

	// Timeout is the deadline for the whole run, measured from spawn.
	// Zero means none.
	Timeout   time.Duration
	OnTimeout func(ProcessInfo)

	// OnComplete runs once after Wait sees a normal exit.
	OnComplete func()

	// Formatter defaults to NullFormatter.
	Formatter Formatter

	// UsePTY runs the command on a pseudo-terminal, falling back to pipes
	// when none can be allocated.
	UsePTY bool

	// KillGrace is how long Kill waits after SIGTERM before SIGKILL.
	// Zero uses the configured default; a negative value kills at once.
	KillGrace time.Duration

	// IsInterrupt decides which exit codes mean the child was interrupted.
	// Defaults to DefaultIsInterrupt.
	IsInterrupt func(code int) bool
	OnInterrupt func(code int)

	// Logger defaults to a warn-level stderr logger configured from the
	// RUNPROC_* environment.
	Logger *slog.Logger
	// Registry defaults to registry.Default().
	Registry *registry.Registry
	// Metrics is optional.
	Metrics *diag.Collector
}

func (o *Options) withDefaults(cfg *config.Config) Options {
	var out Options
	if o != nil {
		out = *o
	}
	if out.Formatter == nil {
		out.Formatter = NullFormatter{}
	}
	if out.IsInterrupt == nil {
		out.IsInterrupt = DefaultIsInterrupt
	}
	if out.Registry == nil {
		out.Registry = registry.Default()
	}
	switch {
	case out.KillGrace == 0:
		out.KillGrace = cfg.KillGrace
	case out.KillGrace < 0:
		out.KillGrace = 0
	}
	return out
}
