package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// ExitCode converts the error from exec.Cmd.Wait into an exit code.
// A process killed by a signal reports 128 plus the signal number, the
// way a POSIX shell does.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
