// Package proctree terminates and describes whole process trees.
//
// Children are expected to lead their own process group (Setpgid or
// Setsid at spawn), so the tree is reached through the negative pid.
// On Linux, descendants that moved to another group are found through
// /proc and signalled individually.
package proctree

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrKillFailed means some processes in the tree survived SIGKILL.
	ErrKillFailed = errors.New("proctree: processes survived kill")

	// ErrUnsupported is returned by Tree where processes cannot be listed.
	ErrUnsupported = errors.New("proctree: process listing unsupported")
)

// PollInterval is how often KillTree checks whether the tree is gone.
const PollInterval = 10 * time.Millisecond

// ForcedTimeout bounds the wait after SIGKILL.
const ForcedTimeout = time.Second

// Proc is one process in a tree.
type Proc struct {
	PID     int    `json:"pid"`
	PPID    int    `json:"ppid"`
	Pgrp    int    `json:"pgrp"`
	State   string `json:"state"`
	Command string `json:"command"`
	Depth   int    `json:"depth"`
}

// Info renders the tree rooted at pid as indented text, for timeout and
// hang diagnostics. It never fails; errors become part of the text.
func Info(pid int) string {
	procs, err := Tree(pid)
	if err != nil {
		return fmt.Sprintf("process tree for %d unavailable: %v", pid, err)
	}
	if len(procs) == 0 {
		return fmt.Sprintf("process %d not found", pid)
	}

	var b strings.Builder
	for _, p := range procs {
		fmt.Fprintf(&b, "%s%d [%s] %s\n", strings.Repeat("  ", p.Depth), p.PID, p.State, p.Command)
	}
	return strings.TrimRight(b.String(), "\n")
}

// walk indexes a flat process list by parent and returns root followed by
// its descendants, depth-first.
func walk(all []Proc, root int) []Proc {
	byParent := make(map[int][]Proc)
	var rootProc *Proc
	for i := range all {
		p := all[i]
		if p.PID == root {
			rootProc = &all[i]
			continue
		}
		byParent[p.PPID] = append(byParent[p.PPID], p)
	}
	if rootProc == nil {
		return nil
	}

	var out []Proc
	var visit func(p Proc, depth int)
	visit = func(p Proc, depth int) {
		p.Depth = depth
		out = append(out, p)
		for _, c := range byParent[p.PID] {
			visit(c, depth+1)
		}
	}
	visit(*rootProc, 0)
	return out
}
