// Package runproc runs a child process and streams its merged output, line
// by line, to the caller.
//
// A Process owns three goroutines' worth of work: the caller's, a reader
// that drains the child's output into an unbounded queue, and a watcher
// that kills the child when its deadline passes. Callers consume lines with
// NextLine, TryNextLine, Drain or Lines, and wait for the exit with Wait.
// Every way a process can end (natural exit, Kill, deadline) converges on
// the same one-shot bookkeeping: the end time is recorded and the process
// leaves its registry.
package runproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-runproc/diag"
	"github.com/randomizedcoder/go-runproc/internal/config"
	"github.com/randomizedcoder/go-runproc/internal/framer"
	"github.com/randomizedcoder/go-runproc/internal/logging"
	"github.com/randomizedcoder/go-runproc/internal/outq"
	"github.com/randomizedcoder/go-runproc/internal/process"
	"github.com/randomizedcoder/go-runproc/internal/proctree"
	"github.com/randomizedcoder/go-runproc/internal/reader"
	"github.com/randomizedcoder/go-runproc/internal/watcher"
	"github.com/randomizedcoder/go-runproc/registry"
)

var (
	tuningOnce sync.Once
	tuning     *config.Config
	tuningErr  error
)

// defaultTuning loads the RUNPROC_* environment once. An invalid
// environment is replaced by defaults and its error returned alongside.
func defaultTuning() (*config.Config, error) {
	tuningOnce.Do(func() {
		cfg, err := config.FromEnv()
		if err != nil {
			cfg = config.DefaultConfig()
		}
		tuning, tuningErr = cfg, err
	})
	return tuning, tuningErr
}

// session is everything Start creates. It is published once and never
// modified.
type session struct {
	handle   process.Handle
	reader   *reader.Reader
	watcher  *watcher.Watcher
	shutdown context.CancelFunc
	start    time.Time
}

// Process is a managed child process. Create one with New.
type Process struct {
	id       string
	resolved config.Resolved
	opts     Options
	cfg      *config.Config
	logger   *slog.Logger
	queue    *outq.Queue

	// mu serializes Start and guards the fields below it.
	mu         sync.Mutex
	endTime    time.Time
	lastOutput time.Time
	output     []string

	run atomic.Pointer[session]

	killOnce    sync.Once
	timedOut    atomic.Bool
	notified    atomic.Bool
	timeoutOnce sync.Once
}

// New validates cmd and, unless opts.DeferStart is set, starts it. A nil
// opts is the same as &Options{}.
func New(cmd Command, opts *Options) (*Process, error) {
	cfg, tuningErr := defaultTuning()
	o := opts.withDefaults(cfg)

	resolved, err := config.Resolve(cmd, o.Shell)
	if err != nil {
		return nil, configError(err)
	}

	logger := o.Logger
	if logger == nil {
		logger = logging.Default()
	}

	p := &Process{
		id:       uuid.NewString(),
		resolved: resolved,
		opts:     o,
		cfg:      cfg,
		logger:   logger.With("cmd", resolved.Display),
		queue:    outq.New(),
	}
	if tuningErr != nil {
		p.logger.Warn("invalid_environment_config", "error", tuningErr)
	}

	if !o.DeferStart {
		if err := p.Start(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Start spawns the process and its reader and watcher. It fails if the
// process was already started; spawn failures are returned as is.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.run.Load() != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}

	spec := process.Spec{
		Argv:   p.resolved.Argv,
		Dir:    p.opts.Dir,
		Env:    p.environ(),
		PTY:    p.opts.UsePTY,
		OnExit: p.exited,
	}
	h, err := process.Start(spec)
	if errors.Is(err, process.ErrPTYUnavailable) {
		p.logger.Warn("pty_unavailable", "error", err)
		p.opts.Metrics.PTYFallback()
		spec.PTY = false
		h, err = process.Start(spec)
	}
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("runproc: start %s: %w", p.resolved.Display, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &session{
		handle:   h,
		shutdown: cancel,
		start:    time.Now(),
	}
	r.reader = reader.New(reader.Config{
		Source: h,
		Framer: framer.New(h.Mode() == process.ModePTY),
		Queue:  p.queue,
		Hooks: reader.Hooks{
			Begin:     p.opts.Formatter.Begin,
			Transform: p.opts.Formatter.Transform,
			End:       p.opts.Formatter.End,
		},
		OnLine:       p.recordLine,
		OnEnd:        p.readerEnded,
		OnFailure:    p.opts.Metrics.CollaboratorFailed,
		PollInterval: p.cfg.ReadPollInterval,
		ReadSize:     p.cfg.PTYReadSize,
		Logger:       p.logger,
	})
	r.watcher = watcher.New(watcher.Config{
		Deadline:  p.opts.Timeout,
		Start:     r.start,
		Exited:    h.Done(),
		OnTimeout: p.deadlinePassed,
		Kill: func() error {
			p.Kill()
			return nil
		},
		Logger: p.logger,
	})
	p.run.Store(r)
	p.mu.Unlock()

	p.opts.Registry.Register(p)
	p.opts.Metrics.ProcessStarted(h.Mode().String())
	p.logger.Debug("process_started",
		"pid", h.PID(),
		"mode", h.Mode().String(),
		"shell", p.resolved.Shell,
	)

	go r.reader.Run(ctx)
	go r.watcher.Run(ctx)
	return nil
}

func (p *Process) environ() []string {
	env := append(os.Environ(), "PYTHONUNBUFFERED=1")
	return append(env, p.opts.Env...)
}

// =============================================================================
// Worker callbacks
// =============================================================================

func (p *Process) recordLine(line string) {
	p.mu.Lock()
	p.output = append(p.output, line)
	p.lastOutput = time.Now()
	p.mu.Unlock()
	p.opts.Metrics.LineRead()
}

// readerEnded and exited each finish the bookkeeping if the other has
// already happened, so whichever runs last does it.
func (p *Process) readerEnded() {
	r := p.run.Load()
	if r == nil {
		return
	}
	bytesRead, _, healthy := r.reader.Stats()
	_, dropped, _ := p.queue.Stats()
	p.opts.Metrics.StreamEnded(bytesRead, dropped, healthy)

	if _, exited := r.handle.Poll(); exited {
		p.notifyTerminated()
	}
}

func (p *Process) exited(code int) {
	// Start holds mu until run is published.
	p.mu.Lock()
	r := p.run.Load()
	if p.endTime.IsZero() {
		p.endTime = time.Now()
	}
	p.mu.Unlock()

	var ran time.Duration
	if r != nil {
		ran = time.Since(r.start)
	}
	p.opts.Metrics.ProcessExited(code, ran)
	p.logger.Debug("process_exited", "exit_code", code, "ran", ran.Round(time.Millisecond))

	if p.queue.Closed() {
		p.notifyTerminated()
	}
}

func (p *Process) deadlinePassed() {
	p.timedOut.Store(true)
	p.opts.Metrics.Timeout(diag.TimeoutWatcher)
	p.fireTimeout()
}

// fireTimeout runs the timeout callback at most once.
func (p *Process) fireTimeout() {
	p.timeoutOnce.Do(func() {
		if p.opts.OnTimeout == nil {
			return
		}
		r := p.run.Load()
		if r == nil {
			return
		}
		pid := r.handle.PID()
		info := ProcessInfo{
			PID:     pid,
			Command: p.Command(),
			Elapsed: time.Since(r.start),
			Tree:    proctree.Info(pid),
		}
		p.safeCall("on_timeout", func() { p.opts.OnTimeout(info) })
	})
}

// safeCall runs a caller-supplied callback, logging a panic instead of
// propagating it.
func (p *Process) safeCall(name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("collaborator_failed", "hook", name, "panic", r)
			p.opts.Metrics.CollaboratorFailed(name)
		}
	}()
	fn()
}

// notifyTerminated records the end time and leaves the registry. Only the
// first call does anything.
func (p *Process) notifyTerminated() {
	if !p.notified.CompareAndSwap(false, true) {
		return
	}
	p.setEndTime()
	p.safeCall("registry", func() { p.opts.Registry.Unregister(p) })
}

func (p *Process) setEndTime() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endTime.IsZero() {
		p.endTime = time.Now()
	}
}

// =============================================================================
// Line retrieval
// =============================================================================

// NextLine returns the next line, waiting up to timeout. A zero timeout
// never blocks; NoTimeout waits until a line or end of stream arrives.
// KindTimedOut means the wait ended first. End of stream is reported only
// once every line has been returned, and again on every later call. The
// error is ErrNotStarted or ctx's error.
func (p *Process) NextLine(ctx context.Context, timeout time.Duration) (Result, error) {
	if p.run.Load() == nil {
		return Result{Kind: KindTimedOut}, ErrNotStarted
	}
	line, st, err := p.queue.Get(ctx, timeout)
	if err != nil {
		return Result{Kind: KindTimedOut}, err
	}
	return resultFrom(line, st), nil
}

// TryNextLine returns a line, end of stream, or KindTimedOut meaning no
// data yet. It never blocks and never fails.
func (p *Process) TryNextLine() Result {
	if p.run.Load() == nil {
		return Result{Kind: KindTimedOut}
	}
	return resultFrom(p.queue.TryGet())
}

// Drain removes and returns every buffered line. It never consumes end of
// stream.
func (p *Process) Drain() []string {
	return p.queue.DrainAll()
}

// HasPendingOutput reports whether at least one line is buffered.
func (p *Process) HasPendingOutput() bool {
	return p.queue.HasPending()
}

func (p *Process) echoPending(echo EchoFunc) int {
	lines := p.queue.DrainAll()
	for _, line := range lines {
		echo(line)
	}
	return len(lines)
}

// echoDrained tells the sink how many lines Wait echoed in its final drain.
func echoDrained(echo EchoFunc, n int, when string) {
	if n > 0 {
		echo(fmt.Sprintf("[Drained %d final lines %s]", n, when))
	}
}

// =============================================================================
// Waiting and termination
// =============================================================================

// Poll reports the exit code if the process has exited. The first call to
// see the exit finishes the termination bookkeeping.
func (p *Process) Poll() (code int, exited bool) {
	r := p.run.Load()
	if r == nil {
		return 0, false
	}
	code, exited = r.handle.Poll()
	if exited {
		p.notifyTerminated()
	}
	return code, exited
}

// Wait blocks until the process exits, echoing output as it arrives. A
// positive timeout is measured from the call; otherwise Options.Timeout
// applies from spawn. On timeout the remaining output is echoed, the
// timeout callback runs, the tree is killed and a *TimeoutError returned.
// Lines echoed after the exit, or at the timeout, are followed by a
// "[Drained N final lines ...]" marker line.
// Cancelling ctx kills the tree and returns ctx's error. An exit code that
// Options.IsInterrupt accepts is passed to Options.OnInterrupt and returned
// with an error wrapping ErrInterrupted.
func (p *Process) Wait(ctx context.Context, echo EchoFunc, timeout time.Duration) (int, error) {
	r := p.run.Load()
	if r == nil {
		return -1, ErrNotStarted
	}
	if echo == nil {
		echo = EchoNone
	}

	limit := timeout
	var deadline <-chan time.Time
	switch {
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	case p.opts.Timeout > 0:
		limit = p.opts.Timeout
		timer := time.NewTimer(max(time.Until(r.start.Add(limit)), 0))
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(p.cfg.WaitSlice)
	defer ticker.Stop()

	for {
		if _, exited := r.handle.Poll(); exited {
			break
		}
		p.echoPending(echo)
		select {
		case <-r.handle.Done():
		case <-ticker.C:
		case <-deadline:
			return p.waitTimedOut(r, echo, limit)
		case <-ctx.Done():
			p.Kill()
			return p.exitCode(r), ctx.Err()
		}
	}

	drained := p.echoPending(echo)
	if !r.reader.Join(p.cfg.ReaderJoin) {
		p.logger.Warn("reader_join_timeout", "pid", r.handle.PID(), "waited", p.cfg.ReaderJoin)
		r.shutdown()
		_ = r.handle.CloseOutput()
		r.reader.Join(p.cfg.ForcedRejoin)
	}
	drained += p.echoPending(echo)
	echoDrained(echo, drained, "after completion")
	if !r.watcher.Join(p.cfg.ReaderJoin) {
		p.logger.Warn("watcher_join_timeout", "pid", r.handle.PID(), "deadline", r.watcher.State().String())
	}

	code := p.exitCode(r)
	if p.timedOut.Load() || r.watcher.State() == DeadlineExpired {
		p.notifyTerminated()
		return code, &TimeoutError{Command: p.Command(), Timeout: p.opts.Timeout}
	}
	if p.opts.IsInterrupt(code) {
		p.logger.Warn("process_interrupted", "pid", r.handle.PID(), "exit_code", code)
		p.notifyTerminated()
		p.safeCall("on_interrupt", func() {
			if p.opts.OnInterrupt != nil {
				p.opts.OnInterrupt(code)
			}
		})
		return code, fmt.Errorf("%w: exit code %d", ErrInterrupted, code)
	}

	p.safeCall("on_complete", p.opts.OnComplete)
	p.notifyTerminated()
	return code, nil
}

func (p *Process) waitTimedOut(r *session, echo EchoFunc, limit time.Duration) (int, error) {
	p.timedOut.Store(true)
	p.opts.Metrics.Timeout(diag.TimeoutWait)
	p.logger.Warn("wait_timeout", "pid", r.handle.PID(), "timeout", limit)

	drained := p.echoPending(echo)
	echoDrained(echo, drained, "before timeout")
	p.fireTimeout()
	p.Kill()

	return p.exitCode(r), &TimeoutError{
		Command: p.Command(),
		Timeout: limit,
		Drained: drained,
	}
}

func (p *Process) exitCode(r *session) int {
	if code, exited := r.handle.Poll(); exited {
		return code
	}
	return -1
}

// Kill stops the whole process tree: SIGTERM, then SIGKILL after the grace
// period. It is a no-op before Start and after a natural exit. Concurrent
// calls all return once the first has finished.
func (p *Process) Kill() {
	r := p.run.Load()
	if r == nil {
		return
	}
	// After a natural exit the reader only needs to finish draining. If it
	// cannot, a descendant still holds the output open and the tree is
	// killed anyway.
	if _, exited := r.handle.Poll(); exited && r.reader.Join(p.cfg.KillJoin) {
		p.notifyTerminated()
		return
	}
	p.killOnce.Do(func() { p.killTree(r) })
}

func (p *Process) killTree(r *session) {
	p.setEndTime()
	r.shutdown()
	if r.handle.Mode() == process.ModePTY {
		// Unblocks a reader parked on the terminal.
		_ = r.handle.CloseOutput()
	}

	pid := r.handle.PID()
	if err := proctree.KillTree(pid, p.opts.KillGrace); err != nil {
		p.logger.Warn("kill_tree_failed", "pid", pid, "error", err)
		p.opts.Metrics.CollaboratorFailed("kill_tree")
		if err := r.handle.Kill(); err != nil {
			p.logger.Warn("kill_failed", "pid", pid, "error", err)
		}
	}
	p.opts.Metrics.Killed()

	// The tree can be gone before the reaper has collected the root.
	select {
	case <-r.handle.Done():
	case <-time.After(proctree.ForcedTimeout):
		p.logger.Warn("kill_reap_timeout", "pid", pid)
	}
	r.reader.Join(p.cfg.KillJoin)
	p.notifyTerminated()
}

// Terminate asks the process to exit and stops reading its output.
func (p *Process) Terminate() error {
	r := p.run.Load()
	if r == nil {
		return ErrNotStarted
	}
	r.shutdown()
	return r.handle.Terminate()
}

// Write sends input to a process running on a terminal.
func (p *Process) Write(b []byte) (int, error) {
	t, err := p.terminal()
	if err != nil {
		return 0, err
	}
	return t.Write(b)
}

// Resize changes the terminal size of a process running on a terminal.
func (p *Process) Resize(rows, cols uint16) error {
	t, err := p.terminal()
	if err != nil {
		return err
	}
	return t.Resize(rows, cols)
}

func (p *Process) terminal() (process.Terminal, error) {
	r := p.run.Load()
	if r == nil {
		return nil, ErrNotStarted
	}
	t, ok := r.handle.(process.Terminal)
	if !ok {
		return nil, ErrNoTerminal
	}
	return t, nil
}

// =============================================================================
// Accessors
// =============================================================================

// ID identifies the process in its registry.
func (p *Process) ID() string { return p.id }

// PID returns the child's process id, or 0 before Start.
func (p *Process) PID() int {
	if r := p.run.Load(); r != nil {
		return r.handle.PID()
	}
	return 0
}

// Command returns the command as it would be typed at a shell.
func (p *Process) Command() string { return p.resolved.Display }

// Started reports whether Start has succeeded.
func (p *Process) Started() bool { return p.run.Load() != nil }

// UsingPTY reports whether the process runs on a terminal. It is false
// when a terminal was requested but unavailable.
func (p *Process) UsingPTY() bool {
	r := p.run.Load()
	return r != nil && r.handle.Mode() == process.ModePTY
}

// State returns where the process is in its lifecycle.
func (p *Process) State() State {
	r := p.run.Load()
	if r == nil {
		return StateNotStarted
	}
	if _, exited := r.handle.Poll(); !exited {
		return StateRunning
	}
	if p.queue.Closed() && !p.queue.HasPending() {
		return StateTerminated
	}
	return StateDraining
}

// Deadline reports whether the deadline is still pending, has expired, or
// stopped mattering because the process ended first.
func (p *Process) Deadline() DeadlineState {
	if r := p.run.Load(); r != nil {
		return r.watcher.State()
	}
	return DeadlineWaiting
}

// StreamStats describes the output stream for diagnostics.
func (p *Process) StreamStats() registry.StreamStats {
	queued, dropped, buffered := p.queue.Stats()
	stats := registry.StreamStats{
		LinesQueued:   queued,
		LinesDropped:  dropped,
		Buffered:      buffered,
		ReaderHealthy: true,
		Deadline:      p.Deadline().String(),
	}
	if r := p.run.Load(); r != nil {
		stats.BytesRead, stats.LinesRead, stats.ReaderHealthy = r.reader.Stats()
	}
	return stats
}

// Finished reports whether the process has exited.
func (p *Process) Finished() bool {
	r := p.run.Load()
	if r == nil {
		return false
	}
	_, exited := r.handle.Poll()
	return exited
}

// ReturnCode is Poll under the name callers look for.
func (p *Process) ReturnCode() (int, bool) {
	return p.Poll()
}

// StartTime is when the process was spawned, or zero before Start.
func (p *Process) StartTime() time.Time {
	if r := p.run.Load(); r != nil {
		return r.start
	}
	return time.Time{}
}

// EndTime is when the process exited or was killed, or zero.
func (p *Process) EndTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endTime
}

// Duration is how long the process ran. ok is false until both the start
// and end times are set.
func (p *Process) Duration() (d time.Duration, ok bool) {
	start, end := p.StartTime(), p.EndTime()
	if start.IsZero() || end.IsZero() {
		return 0, false
	}
	return end.Sub(start), true
}

// Output returns every line read so far, in order.
func (p *Process) Output() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.output)
}

// OutputText returns every line read so far joined by newlines.
func (p *Process) OutputText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.output, "\n")
}

// LastOutputTime is when the last line was read, or zero.
func (p *Process) LastOutputTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOutput
}

// TimeSinceLastOutput reports how long ago the last line was read. ok is
// false if nothing has been read.
func (p *Process) TimeSinceLastOutput() (d time.Duration, ok bool) {
	last := p.LastOutputTime()
	if last.IsZero() {
		return 0, false
	}
	return time.Since(last), true
}
