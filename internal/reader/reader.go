// Package reader drains a process's output stream on a dedicated goroutine
// so the child never blocks on a full pipe, and forwards framed,
// transformed lines to the output queue.
//
// Lifecycle:
//
//  1. r := reader.New(cfg)
//  2. go r.Run(ctx)       // cancel ctx to request shutdown
//  3. r.Join(timeout)     // wait for the goroutine to finish
//
// Run always closes the queue exactly once, whatever way it exits.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-runproc/internal/framer"
	"github.com/randomizedcoder/go-runproc/internal/outq"
	"github.com/randomizedcoder/go-runproc/internal/process"
)

// Source is the part of a process handle the reader needs.
type Source interface {
	ReadChunk(buf []byte, timeout time.Duration) (int, error)
	CloseOutput() error
	Kill() error
}

// Hooks are the formatter calls made around the stream. Any may be nil.
type Hooks struct {
	Begin     func() error
	Transform func(line string) string
	End       func() error
}

// Config configures a Reader.
type Config struct {
	Source Source
	Framer framer.Framer
	Queue  *outq.Queue
	Hooks  Hooks

	// OnLine sees every line after it has been queued.
	OnLine func(line string)
	// OnEnd runs after the output is closed and before Hooks.End.
	OnEnd func()
	// OnFailure is told about each collaborator failure, by name.
	OnFailure func(what string)

	PollInterval time.Duration
	ReadSize     int
	Logger       *slog.Logger
}

// Reader is the output-draining worker.
type Reader struct {
	cfg    Config
	logger *slog.Logger

	done       chan struct{}
	finishOnce sync.Once

	// Stats (atomic for thread-safety)
	bytesRead atomic.Int64
	linesRead atomic.Int64
	failed    atomic.Bool
}

// New creates a reader. Nil optional fields get safe defaults.
func New(cfg Config) *Reader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = 4096
	}
	if cfg.Framer == nil {
		cfg.Framer = framer.New(false)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run reads until the stream ends, a read fails, or ctx is cancelled.
func (r *Reader) Run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			// Do not leave the child running behind a crashed reader.
			r.logger.Error("reader_panic",
				"panic", p,
				"stack", string(debug.Stack()),
			)
			if err := r.cfg.Source.Kill(); err != nil {
				r.logger.Warn("reader_panic_kill_failed", "error", err)
			}
			r.failed.Store(true)
			r.finish()
			panic(p)
		}
	}()

	r.hook("begin", r.cfg.Hooks.Begin)

	if err := r.loop(ctx); err != nil {
		r.failed.Store(true)
		r.logger.Warn("reader_stream_error", "error", err)
	}
	for _, line := range r.cfg.Framer.Flush() {
		r.emit(line)
	}

	r.finish()
}

func (r *Reader) loop(ctx context.Context) error {
	buf := make([]byte, r.cfg.ReadSize)
	for {
		if ctx.Err() != nil {
			r.logger.Debug("reader_shutdown")
			return nil
		}

		n, err := r.cfg.Source.ReadChunk(buf, r.cfg.PollInterval)
		if n > 0 {
			r.bytesRead.Add(int64(n))
			for _, line := range r.cfg.Framer.Feed(buf[:n]) {
				r.emit(line)
			}
		}

		switch {
		case err == nil, errors.Is(err, process.ErrNoData):
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

func (r *Reader) emit(line string) {
	line = r.transform(line)
	r.cfg.Queue.Push(line)
	r.linesRead.Add(1)
	if r.cfg.OnLine != nil {
		r.cfg.OnLine(line)
	}
}

// transform falls back to the untransformed line if the hook panics.
func (r *Reader) transform(line string) (out string) {
	if r.cfg.Hooks.Transform == nil {
		return line
	}
	defer func() {
		if p := recover(); p != nil {
			r.collaboratorFailed("transform", fmt.Errorf("panic: %v", p))
			out = line
		}
	}()
	return r.cfg.Hooks.Transform(line)
}

// finish runs the end-of-stream sequence exactly once.
func (r *Reader) finish() {
	r.finishOnce.Do(func() {
		r.cfg.Queue.Close()
		if err := r.cfg.Source.CloseOutput(); err != nil {
			r.logger.Debug("reader_close_output", "error", err)
		}
		r.hook("on_end", func() error {
			if r.cfg.OnEnd != nil {
				r.cfg.OnEnd()
			}
			return nil
		})
		r.hook("end", r.cfg.Hooks.End)
	})
}

// hook runs fn, turning an error or panic into a logged warning.
func (r *Reader) hook(name string, fn func() error) {
	if fn == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn()
	}()
	if err != nil {
		r.collaboratorFailed(name, err)
	}
}

func (r *Reader) collaboratorFailed(what string, err error) {
	r.logger.Warn("collaborator_failed", "hook", what, "error", err)
	if r.cfg.OnFailure != nil {
		r.cfg.OnFailure(what)
	}
}

// Done is closed when Run has returned.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Join waits up to timeout for Run to return and reports whether it did.
func (r *Reader) Join(timeout time.Duration) bool {
	select {
	case <-r.done:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.done:
		return true
	case <-t.C:
		return false
	}
}

// Stats returns (bytesRead, linesRead, healthy).
// healthy is false if the stream ended with a read error.
func (r *Reader) Stats() (bytesRead int64, linesRead int64, healthy bool) {
	return r.bytesRead.Load(), r.linesRead.Load(), !r.failed.Load()
}
