//go:build linux

package proctree

import (
	"fmt"
	"strings"

	"github.com/prometheus/procfs"
)

// Tree returns pid and its descendants, root first, depth-first.
func Tree(pid int) ([]Proc, error) {
	procs, err := procfs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("proctree: list processes: %w", err)
	}

	all := make([]Proc, 0, len(procs))
	for _, fp := range procs {
		if p, ok := describe(fp); ok {
			all = append(all, p)
		}
	}
	return walk(all, pid), nil
}

// describe reads one process. It may vanish at any time, which is
// reported as !ok.
func describe(fp procfs.Proc) (Proc, bool) {
	stat, err := fp.Stat()
	if err != nil {
		return Proc{}, false
	}
	p := fromStat(stat)
	if args, err := fp.CmdLine(); err == nil && len(args) > 0 {
		p.Command = strings.Join(args, " ")
	}
	return p, true
}

// fromStat keeps the fields a tree needs. Kernel threads and zombies have
// no command line, so comm stands in, bracketed the way ps shows it.
func fromStat(stat procfs.ProcStat) Proc {
	return Proc{
		PID:     stat.PID,
		PPID:    stat.PPID,
		Pgrp:    stat.PGRP,
		State:   stat.State,
		Command: "[" + stat.Comm + "]",
	}
}

// gone reports whether a /proc state means the process no longer runs.
func gone(state string) bool {
	return state == "Z" || state == "X"
}

// groupAlive reports whether any live, non-zombie process is in group
// pgid. ok is false if /proc cannot be read.
func groupAlive(pgid int) (alive, ok bool) {
	procs, err := procfs.AllProcs()
	if err != nil {
		return false, false
	}
	for _, fp := range procs {
		stat, err := fp.Stat()
		if err != nil {
			continue
		}
		if stat.PGRP == pgid && !gone(stat.State) {
			return true, true
		}
	}
	return false, true
}

func zombie(pid int) bool {
	fp, err := procfs.NewProc(pid)
	if err != nil {
		return false
	}
	stat, err := fp.Stat()
	return err == nil && gone(stat.State)
}
