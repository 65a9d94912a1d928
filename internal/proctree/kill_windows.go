//go:build windows

package proctree

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// KillTree force-kills pid and all of its descendants with taskkill.
// Windows has no graceful equivalent, so grace is unused.
func KillTree(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	out, err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: taskkill: %v: %s", ErrKillFailed, err, out)
	}
	return nil
}
