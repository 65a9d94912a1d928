//go:build !windows

package proctree

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// KillTree sends SIGTERM to the process group led by pid and to any known
// descendants, waits up to grace for them to exit, then SIGKILLs whatever
// is left. A tree that is already gone is not an error.
func KillTree(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}

	// Collect before signalling; once the root dies its children are
	// reparented and can no longer be found from it.
	var stray []int
	if procs, err := Tree(pid); err == nil && len(procs) > 1 {
		for _, p := range procs[1:] {
			stray = append(stray, p.PID)
		}
	}

	signalAll(pid, stray, unix.SIGTERM)
	if waitGone(pid, stray, grace) {
		return nil
	}

	signalAll(pid, stray, unix.SIGKILL)
	if waitGone(pid, stray, ForcedTimeout) {
		return nil
	}
	return ErrKillFailed
}

func signalAll(pid int, stray []int, sig unix.Signal) {
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		// Not a group leader; signal the root itself.
		_ = unix.Kill(pid, sig)
	}
	for _, p := range stray {
		_ = unix.Kill(p, sig)
	}
}

func waitGone(pid int, stray []int, limit time.Duration) bool {
	deadline := time.Now().Add(limit)
	for {
		if !alive(pid, stray) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(PollInterval)
	}
}

func alive(pid int, stray []int) bool {
	if group, ok := groupAlive(pid); ok {
		if group {
			return true
		}
	} else if exists(-pid) {
		return true
	}
	if exists(pid) {
		return true
	}
	for _, p := range stray {
		if exists(p) {
			return true
		}
	}
	return false
}

// exists treats zombies as gone so an unreaped child does not hold up the
// wait.
func exists(pid int) bool {
	if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
		return false
	}
	if pid > 0 && zombie(pid) {
		return false
	}
	return true
}
