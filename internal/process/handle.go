// Package process spawns child processes with their stdout and stderr
// merged into a single output stream, either over a pipe or through a
// pseudo-terminal.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

var (
	// ErrNoData is returned by ReadChunk when the read timeout expires
	// before any output arrives. It does not mean the stream has ended.
	ErrNoData = errors.New("process: no data available")

	// ErrPTYUnavailable is returned by Start when a pseudo-terminal
	// cannot be allocated on this host.
	ErrPTYUnavailable = errors.New("process: pseudo-terminal unavailable")
)

// Mode identifies how the output stream is attached.
type Mode int

const (
	ModePipe Mode = iota
	ModePTY
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModePipe:
		return "pipe"
	case ModePTY:
		return "pty"
	default:
		return "unknown"
	}
}

// Handle is a running child process and its merged output stream.
//
// ReadChunk is meant for a single reader goroutine. All other methods are
// safe for concurrent use.
type Handle interface {
	PID() int
	Mode() Mode

	// ReadChunk reads whatever output is available, waiting at most
	// timeout (zero waits indefinitely). It returns ErrNoData when the
	// timeout expires and io.EOF once the stream has ended.
	ReadChunk(buf []byte, timeout time.Duration) (int, error)

	// CloseOutput releases the output stream. Safe to call multiple times.
	CloseOutput() error

	// Poll reports the exit code if the process has exited.
	Poll() (code int, exited bool)

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// Wait blocks until the process exits or ctx is done.
	Wait(ctx context.Context) (int, error)

	// Kill sends SIGKILL to the process itself. Killing an exited
	// process is not an error.
	Kill() error

	// Terminate asks the process to exit gracefully.
	Terminate() error
}

// Terminal is a Handle attached to a pseudo-terminal.
type Terminal interface {
	Handle
	io.Writer
	Resize(rows, cols uint16) error
}

// Spec describes the process to start.
type Spec struct {
	Argv []string
	Dir  string
	Env  []string // nil inherits the parent environment

	PTY        bool
	Rows, Cols uint16 // terminal size, PTY only

	// OnExit runs once, on the reaping goroutine, after Done is closed.
	OnExit func(code int)
}

// Start spawns the process. Stdin is /dev/null in pipe mode and the
// terminal in PTY mode. When Spec.PTY is set and no terminal can be
// allocated, Start returns an error wrapping ErrPTYUnavailable without
// having started anything.
func Start(spec Spec) (Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("process: empty argv")
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	if spec.PTY {
		return startPTY(cmd, spec)
	}
	return startPipe(cmd, spec)
}

func startPipe(cmd *exec.Cmd, spec Spec) (Handle, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("process: create pipe: %w", err)
	}

	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds its own copy of the write end.
	pw.Close()

	h := &pipeHandle{}
	h.init(cmd, pr, ModePipe, spec.OnExit)
	return h, nil
}

// base carries everything the two variants share.
type base struct {
	cmd  *exec.Cmd
	mode Mode
	out  *os.File

	// Owned by the reader goroutine.
	noDeadlines bool

	closeOnce sync.Once
	closeErr  error

	done     chan struct{}
	exitCode int
	waitErr  error
	onExit   func(code int)
}

// init must run right after cmd.Start succeeds.
func (b *base) init(cmd *exec.Cmd, out *os.File, mode Mode, onExit func(int)) {
	b.cmd = cmd
	b.mode = mode
	b.out = out
	b.onExit = onExit
	b.done = make(chan struct{})
	go b.reap()
}

// reap waits for the process. exitCode is written before done closes.
func (b *base) reap() {
	err := b.cmd.Wait()
	b.waitErr = err
	b.exitCode = ExitCode(err)
	close(b.done)
	if b.onExit != nil {
		b.onExit(b.exitCode)
	}
}

func (b *base) PID() int   { return b.cmd.Process.Pid }
func (b *base) Mode() Mode { return b.mode }

func (b *base) read(buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 && !b.noDeadlines {
		if err := b.out.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			// Not pollable here; fall back to blocking reads.
			b.noDeadlines = true
		}
	}
	n, err := b.out.Read(buf)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, ErrNoData
	case errors.Is(err, os.ErrClosed):
		return n, io.EOF
	}
	return n, err
}

func (b *base) CloseOutput() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.out.Close()
	})
	return b.closeErr
}

func (b *base) Poll() (int, bool) {
	select {
	case <-b.done:
		return b.exitCode, true
	default:
		return 0, false
	}
}

func (b *base) Done() <-chan struct{} { return b.done }

func (b *base) Wait(ctx context.Context) (int, error) {
	select {
	case <-b.done:
		return b.exitCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (b *base) Kill() error {
	return ignoreDone(b.cmd.Process.Kill())
}

func (b *base) Terminate() error {
	return ignoreDone(terminate(b.cmd.Process))
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

type pipeHandle struct {
	base
}

func (h *pipeHandle) ReadChunk(buf []byte, timeout time.Duration) (int, error) {
	return h.read(buf, timeout)
}
