package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
)

// ShellMode selects whether a command runs through the system shell.
type ShellMode int

const (
	// ShellAuto uses the shell for scripts, and for argument lists that
	// contain a shell operator.
	ShellAuto ShellMode = iota
	ShellAlways
	ShellNever
)

// String returns a human-readable name for the mode.
func (m ShellMode) String() string {
	switch m {
	case ShellAuto:
		return "auto"
	case ShellAlways:
		return "always"
	case ShellNever:
		return "never"
	default:
		return "unknown"
	}
}

// ShellOperators are argument-list elements that only make sense to a shell.
var ShellOperators = []string{"&&", "||", "|", ";", ">", "<", "2>", "&"}

// Command is either a shell script or an argument list. Exactly one of
// Script and Args is set.
type Command struct {
	Script string
	Args   []string
}

// IsScript reports whether the command is a raw shell string.
func (c Command) IsScript() bool {
	return c.Script != "" || len(c.Args) == 0
}

// String renders the command the way it would be typed at a shell.
func (c Command) String() string {
	if c.IsScript() {
		return c.Script
	}
	return JoinArgs(c.Args)
}

// Operators returns the shell operators found in an argument list.
func (c Command) Operators() []string {
	var found []string
	for _, a := range c.Args {
		if slices.Contains(ShellOperators, a) {
			found = append(found, a)
		}
	}
	return found
}

// Resolved is a command ready for exec.
type Resolved struct {
	Argv    []string
	Shell   bool
	Display string
}

// CommandError describes a command that cannot run in the requested mode.
type CommandError struct {
	Field   string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Resolve validates the command against the shell mode and builds the argv.
func Resolve(c Command, mode ShellMode) (Resolved, error) {
	if c.Script == "" && len(c.Args) == 0 {
		return Resolved{}, &CommandError{Field: "command", Message: "must not be empty"}
	}
	if c.Script != "" && len(c.Args) > 0 {
		return Resolved{}, &CommandError{Field: "command", Message: "set either a script or an argument list, not both"}
	}

	shell := false
	switch mode {
	case ShellAlways:
		shell = true
	case ShellNever:
		if c.IsScript() {
			return Resolved{}, &CommandError{
				Field:   "shell",
				Message: "string commands require the shell; pass an argument list or enable the shell",
			}
		}
		if ops := c.Operators(); len(ops) > 0 {
			return Resolved{}, &CommandError{
				Field:   "shell",
				Message: fmt.Sprintf("shell operators %q found in command but the shell is disabled", ops),
			}
		}
	default:
		shell = c.IsScript() || len(c.Operators()) > 0
	}

	r := Resolved{Shell: shell, Display: c.String()}
	if !shell {
		r.Argv = slices.Clone(c.Args)
		return r, nil
	}
	r.Argv = append(shellPrefix(), c.String())
	return r, nil
}

func shellPrefix() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/C"}
	}
	return []string{"/bin/sh", "-c"}
}

// JoinArgs quotes each argument for a POSIX shell. Shell operators stay
// bare so a list like {"echo", "a", "&&", "echo", "b"} keeps its meaning.
func JoinArgs(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = quoteArg(a)
	}
	return strings.Join(parts, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if slices.Contains(ShellOperators, a) {
		return a
	}
	if !strings.ContainsAny(a, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}
