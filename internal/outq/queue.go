// Package outq implements the ordered output channel between a process's
// output reader and its consumers.
//
// The queue is unbounded so the reader never blocks on a slow consumer.
// End of stream is a state, not an item: once closed, the queue reports
// end-of-stream after the last buffered line, and keeps reporting it on
// every later call.
package outq

import (
	"context"
	"sync"
	"time"
)

// NoTimeout makes Get wait until a line arrives, the queue closes, or the
// context is done.
const NoTimeout time.Duration = -1

// Status describes the outcome of Get.
type Status int

const (
	// StatusLine means a line was returned.
	StatusLine Status = iota
	// StatusEnd means the stream is finished and fully consumed.
	StatusEnd
	// StatusTimeout means nothing arrived before the deadline.
	StatusTimeout
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusLine:
		return "line"
	case StatusEnd:
		return "end_of_stream"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Queue is a thread-safe FIFO of lines terminated by at most one
// end-of-stream marker.
type Queue struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	notify chan struct{} // closed and replaced on every state change

	pushed  int64
	dropped int64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{})}
}

// Push appends a line. It returns false, and drops the line, if the queue
// has already been closed. Push never blocks on consumers.
func (q *Queue) Push(line string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.dropped++
		return false
	}
	q.lines = append(q.lines, line)
	q.pushed++
	q.wake()
	return true
}

// Close marks end of stream. Only the first call has an effect; it
// returns whether this call closed the queue.
func (q *Queue) Close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	q.wake()
	return true
}

// wake must be called with mu held.
func (q *Queue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// TryGet returns the next line without waiting. End of stream is reported
// only once every buffered line has been consumed, and is never removed.
func (q *Queue) TryGet() (string, Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	line, st, _ := q.headLocked()
	return line, st
}

func (q *Queue) headLocked() (string, Status, <-chan struct{}) {
	if len(q.lines) > 0 {
		line := q.lines[0]
		q.lines[0] = ""
		q.lines = q.lines[1:]
		return line, StatusLine, nil
	}
	if q.closed {
		return "", StatusEnd, nil
	}
	return "", StatusTimeout, q.notify
}

// Get returns the next line, waiting up to timeout. A zero timeout never
// waits; NoTimeout waits indefinitely. A done context ends the wait with
// the context's error.
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (string, Status, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		line, st, changed := q.headLocked()
		q.mu.Unlock()

		if st != StatusTimeout || timeout == 0 {
			return line, st, nil
		}

		select {
		case <-changed:
		case <-expired:
			// Last look so a line racing the deadline is not reported late.
			line, st = q.TryGet()
			return line, st, nil
		case <-ctx.Done():
			return "", StatusTimeout, ctx.Err()
		}
	}
}

// DrainAll removes and returns every buffered line. It never consumes the
// end-of-stream marker.
func (q *Queue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.lines) == 0 {
		return nil
	}
	out := q.lines
	q.lines = nil
	return out
}

// HasPending reports whether at least one line is buffered.
func (q *Queue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines) > 0
}

// Closed reports whether end of stream has been marked.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns (pushed, dropped, buffered).
func (q *Queue) Stats() (pushed, dropped int64, buffered int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed, q.dropped, len(q.lines)
}
