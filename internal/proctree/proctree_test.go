//go:build linux

package proctree

import (
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/procfs"
)

func startGroup(t *testing.T, script string) (*exec.Cmd, chan error) {
	t.Helper()
	cmd := exec.Command("sh", "-c", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	// Let the shell fork its children.
	time.Sleep(100 * time.Millisecond)
	return cmd, waitCh
}

// =============================================================================
// KillTree
// =============================================================================

func TestKillTree_Group(t *testing.T) {
	cmd, waitCh := startGroup(t, "sleep 30 & sleep 30")
	pid := cmd.Process.Pid

	start := time.Now()
	if err := KillTree(pid, time.Second); err != nil {
		t.Fatalf("KillTree: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("KillTree took %v", elapsed)
	}

	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("root was not reaped")
	}
	if group, _ := groupAlive(pid); group {
		t.Errorf("process group %d still has live members", pid)
	}
}

func TestKillTree_IgnoresTermEscalates(t *testing.T) {
	cmd, waitCh := startGroup(t, "trap '' TERM; sleep 30")

	start := time.Now()
	if err := KillTree(cmd.Process.Pid, 200*time.Millisecond); err != nil {
		t.Fatalf("KillTree: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("expected to wait out the grace period, took %v", elapsed)
	}
	<-waitCh
}

func TestKillTree_AlreadyGone(t *testing.T) {
	cmd := exec.Command("true")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := KillTree(cmd.Process.Pid, time.Second); err != nil {
		t.Errorf("KillTree on exited process: %v", err)
	}
	if err := KillTree(0, time.Second); err != nil {
		t.Errorf("KillTree(0): %v", err)
	}
}

// =============================================================================
// Tree / Info
// =============================================================================

func TestTree_FindsChildren(t *testing.T) {
	cmd, waitCh := startGroup(t, "sleep 30 & sleep 30")
	defer func() {
		KillTree(cmd.Process.Pid, 0)
		<-waitCh
	}()

	procs, err := Tree(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(procs) < 2 {
		t.Fatalf("expected root and children, got %+v", procs)
	}
	if procs[0].PID != cmd.Process.Pid || procs[0].Depth != 0 {
		t.Errorf("root = %+v", procs[0])
	}
	for _, p := range procs[1:] {
		if p.Depth < 1 {
			t.Errorf("child %+v should be deeper than root", p)
		}
	}

	info := Info(cmd.Process.Pid)
	if !strings.Contains(info, "sleep 30") {
		t.Errorf("Info should list the sleeps:\n%s", info)
	}
}

func TestInfo_Missing(t *testing.T) {
	if got := Info(1 << 30); !strings.Contains(got, "not found") {
		t.Errorf("Info(missing) = %q", got)
	}
}

func TestFromStat(t *testing.T) {
	testCases := []struct {
		name string
		in   procfs.ProcStat
		want Proc
	}{
		{
			"simple",
			procfs.ProcStat{PID: 42, Comm: "sleep", State: "S", PPID: 1, PGRP: 42},
			Proc{PID: 42, PPID: 1, Pgrp: 42, State: "S", Command: "[sleep]"},
		},
		{
			"comm with parens",
			procfs.ProcStat{PID: 7, Comm: "a (b) c", State: "R", PPID: 3, PGRP: 7},
			Proc{PID: 7, PPID: 3, Pgrp: 7, State: "R", Command: "[a (b) c]"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, fromStat(tc.in)); diff != "" {
				t.Errorf("fromStat mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestZombie(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pid := cmd.Process.Pid

	// Unreaped, the exited child stays in /proc as a zombie.
	deadline := time.Now().Add(2 * time.Second)
	for !zombie(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("pid %d never became a zombie", pid)
		}
		time.Sleep(PollInterval)
	}
	if exists(pid) {
		t.Errorf("exists(%d) = true for a zombie", pid)
	}

	if err := cmd.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if zombie(pid) {
		t.Errorf("zombie(%d) = true after reaping", pid)
	}
}

func TestWalk(t *testing.T) {
	all := []Proc{
		{PID: 1, PPID: 0},
		{PID: 10, PPID: 1},
		{PID: 11, PPID: 10},
		{PID: 12, PPID: 1},
		{PID: 99, PPID: 50},
	}
	got := walk(all, 1)
	want := []Proc{
		{PID: 1, PPID: 0, Depth: 0},
		{PID: 10, PPID: 1, Depth: 1},
		{PID: 11, PPID: 10, Depth: 2},
		{PID: 12, PPID: 1, Depth: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk mismatch (-want +got):\n%s", diff)
	}
	if walk(all, 500) != nil {
		t.Error("walk of a missing root should be nil")
	}
}
