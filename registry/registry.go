// Package registry keeps a process-wide table of live managed processes
// for hang diagnostics. It never owns a process's lifetime: entries are
// added when a process starts and removed when it terminates.
package registry

import (
	"slices"
	"sync"
	"time"
)

// Entry is the read-only view of a managed process the registry needs.
type Entry interface {
	ID() string
	PID() int
	Command() string
	StartTime() time.Time
	// LastOutputTime is zero if the process has printed nothing.
	LastOutputTime() time.Time
	Finished() bool
}

// Registry is a mutex-guarded, insertion-ordered set of entries.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty registry. Tests should use their own instead of
// Default.
func New() *Registry {
	return &Registry{}
}

var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds e unless an entry with the same ID is present.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.entries, func(x Entry) bool { return x.ID() == e.ID() }) {
		return
	}
	r.entries = append(r.entries, e)
}

// Unregister removes e. Removing an absent entry is a no-op.
func (r *Registry) Unregister(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := e.ID()
	r.entries = slices.DeleteFunc(r.entries, func(x Entry) bool { return x.ID() == id })
}

// List returns every registered entry in registration order.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// ListActive returns the registered entries that have not finished.
// Entries are queried outside the lock, since Finished may itself take
// locks that are held while calling Unregister.
func (r *Registry) ListActive() []Entry {
	return slices.DeleteFunc(r.List(), func(e Entry) bool { return e.Finished() })
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset removes every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// StreamReporter is implemented by entries that can describe their
// output stream.
type StreamReporter interface {
	StreamStats() StreamStats
}

// StreamStats describes an entry's output stream and deadline.
type StreamStats struct {
	BytesRead     int64  `json:"bytes_read"`
	LinesRead     int64  `json:"lines_read"`
	LinesQueued   int64  `json:"lines_queued"`
	LinesDropped  int64  `json:"lines_dropped"`
	Buffered      int    `json:"buffered"`
	ReaderHealthy bool   `json:"reader_healthy"`
	Deadline      string `json:"deadline"`
}

// Info is a point-in-time, serialisable description of an entry.
type Info struct {
	ID              string        `json:"id"`
	PID             int           `json:"pid"`
	Command         string        `json:"command"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration_ns"`
	SinceLastOutput time.Duration `json:"since_last_output_ns"` // -1 if none
	Finished        bool          `json:"finished"`
	Stream          *StreamStats  `json:"stream,omitempty"`
}

// Describe captures e as of now.
func Describe(e Entry, now time.Time) Info {
	info := Info{
		ID:              e.ID(),
		PID:             e.PID(),
		Command:         e.Command(),
		StartTime:       e.StartTime(),
		SinceLastOutput: -1,
		Finished:        e.Finished(),
	}
	if !info.StartTime.IsZero() {
		info.Duration = now.Sub(info.StartTime)
	}
	if last := e.LastOutputTime(); !last.IsZero() {
		info.SinceLastOutput = now.Sub(last)
	}
	if sr, ok := e.(StreamReporter); ok {
		stats := sr.StreamStats()
		info.Stream = &stats
	}
	return info
}

// Snapshot describes every active entry.
func (r *Registry) Snapshot() []Info {
	now := time.Now()
	active := r.ListActive()
	out := make([]Info, 0, len(active))
	for _, e := range active {
		out = append(out, Describe(e, now))
	}
	return out
}
