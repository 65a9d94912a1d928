//go:build !windows

package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	defaultRows = 24
	defaultCols = 200
)

func startPTY(cmd *exec.Cmd, spec Spec) (Handle, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPTYUnavailable, err)
	}

	rows, cols := spec.Rows, spec.Cols
	if rows == 0 {
		rows = defaultRows
	}
	if cols == 0 {
		cols = defaultCols
	}
	// A terminal without a size still works.
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols})

	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	setSession(cmd)

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		tty.Close()
		return nil, err
	}
	// Only the child needs the slave side; keeping it open here would
	// hide the hangup when the child exits.
	tty.Close()

	h := &ptyHandle{}
	h.init(cmd, ptmx, ModePTY, spec.OnExit)
	return h, nil
}

type ptyHandle struct {
	base
}

// ReadChunk maps the EIO a master returns after the slave hangs up to
// io.EOF.
func (h *ptyHandle) ReadChunk(buf []byte, timeout time.Duration) (int, error) {
	n, err := h.read(buf, timeout)
	if errors.Is(err, unix.EIO) {
		return n, io.EOF
	}
	return n, err
}

// Write sends input to the child through the terminal.
func (h *ptyHandle) Write(p []byte) (int, error) {
	return h.out.Write(p)
}

// Resize changes the terminal window size.
func (h *ptyHandle) Resize(rows, cols uint16) error {
	return pty.Setsize(h.out, &pty.Winsize{Rows: rows, Cols: cols})
}
