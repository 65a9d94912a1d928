// Package diag exposes Prometheus metrics and an HTTP diagnostics endpoint
// for managed processes.
//
// A nil *Collector is valid and records nothing, so callers can leave
// metrics unconfigured.
package diag

import (
	"maps"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "runproc"

// Exit categories.
const (
	ExitSuccess = "success"
	ExitError   = "error"
	ExitSignal  = "signal"
)

// Timeout sources.
const (
	TimeoutWatcher = "watcher"
	TimeoutWait    = "wait"
)

// Collector holds the metrics for every process that shares it.
type Collector struct {
	started      *prometheus.CounterVec
	exits        *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	kills        prometheus.Counter
	ptyFallbacks prometheus.Counter
	lines        prometheus.Counter
	bytes        prometheus.Counter
	dropped      prometheus.Counter
	streamErrors prometheus.Counter
	active       prometheus.Gauge
	duration     prometheus.Histogram

	startTime time.Time

	// For summary generation
	mu          sync.Mutex
	activeNow   int
	peakActive  int
	totalStarts int64
	totalKills  int64
	totalBytes  int64
	exitCodes   map[int]int64
	durations   *tdigest.TDigest
	observed    int
}

// NewCollector creates a collector registered with the default registry.
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	c := &Collector{
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processes_started_total",
				Help:      "Processes spawned, by output mode",
			},
			[]string{"mode"}, // "pipe", "pty"
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_exits_total",
				Help:      "Process exits by exit code category",
			},
			[]string{"category"}, // "success", "error", "signal"
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Deadlines exceeded, by where the deadline was detected",
			},
			[]string{"source"}, // "watcher", "wait"
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_failures_total",
				Help:      "Formatter, callback and tree-kill failures that were logged and ignored",
			},
			[]string{"hook"},
		),
		kills: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "kills_total",
				Help:      "Process trees force-killed",
			},
		),
		ptyFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pty_fallbacks_total",
				Help:      "PTY requests that fell back to pipes",
			},
		),
		lines: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_lines_total",
				Help:      "Output lines delivered to the output queue",
			},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_bytes_total",
				Help:      "Raw output bytes read from finished streams",
			},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_lines_dropped_total",
				Help:      "Output lines produced after the queue was closed",
			},
		),
		streamErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_errors_total",
				Help:      "Output streams that ended with a read error",
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_processes",
				Help:      "Processes started and not yet exited",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "process_duration_seconds",
				Help:      "Wall-clock run time from start to exit",
				Buckets: []float64{
					0.01, 0.05, 0.1, 0.25, 0.5,
					1, 2.5, 5, 10, 30, 60, 300,
				},
			},
		),
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
		durations: tdigest.NewWithCompression(100),
	}

	registry.MustRegister(
		c.started,
		c.exits,
		c.timeouts,
		c.failures,
		c.kills,
		c.ptyFallbacks,
		c.lines,
		c.bytes,
		c.dropped,
		c.streamErrors,
		c.active,
		c.duration,
	)

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// ProcessStarted records a spawn.
func (c *Collector) ProcessStarted(mode string) {
	if c == nil {
		return
	}
	c.started.WithLabelValues(mode).Inc()
	c.active.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.activeNow++
	if c.activeNow > c.peakActive {
		c.peakActive = c.activeNow
	}
	c.mu.Unlock()
}

// ProcessExited records an exit and how long the process ran.
func (c *Collector) ProcessExited(exitCode int, ran time.Duration) {
	if c == nil {
		return
	}
	c.exits.WithLabelValues(ExitCategory(exitCode)).Inc()
	c.duration.Observe(ran.Seconds())
	c.active.Dec()

	c.mu.Lock()
	c.activeNow--
	c.exitCodes[exitCode]++
	c.durations.Add(ran.Seconds(), 1)
	c.observed++
	c.mu.Unlock()
}

// ExitCategory buckets an exit code the way the exits metric does.
func ExitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return ExitSuccess
	case exitCode > 128:
		return ExitSignal
	default:
		return ExitError
	}
}

// Timeout records a deadline being exceeded.
func (c *Collector) Timeout(source string) {
	if c == nil {
		return
	}
	c.timeouts.WithLabelValues(source).Inc()
}

// Killed records a forced tree kill.
func (c *Collector) Killed() {
	if c == nil {
		return
	}
	c.kills.Inc()

	c.mu.Lock()
	c.totalKills++
	c.mu.Unlock()
}

// PTYFallback records a PTY request served with pipes.
func (c *Collector) PTYFallback() {
	if c == nil {
		return
	}
	c.ptyFallbacks.Inc()
}

// LineRead records one delivered output line.
func (c *Collector) LineRead() {
	if c == nil {
		return
	}
	c.lines.Inc()
}

// StreamEnded records a finished output stream: the bytes read, the lines
// dropped after close, and whether it ended cleanly.
func (c *Collector) StreamEnded(bytesRead, dropped int64, healthy bool) {
	if c == nil {
		return
	}
	c.bytes.Add(float64(bytesRead))
	c.dropped.Add(float64(dropped))
	if !healthy {
		c.streamErrors.Inc()
	}

	c.mu.Lock()
	c.totalBytes += bytesRead
	c.mu.Unlock()
}

// CollaboratorFailed records a tolerated failure in the named hook.
func (c *Collector) CollaboratorFailed(hook string) {
	if c == nil {
		return
	}
	c.failures.WithLabelValues(hook).Inc()
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary is a snapshot of everything recorded so far.
type Summary struct {
	Uptime      time.Duration
	TotalStarts int64
	TotalKills  int64
	TotalBytes  int64
	Active      int
	PeakActive  int
	ExitCodes   map[int]int64
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration
}

// Summary returns run-time percentiles and exit code counts.
func (c *Collector) Summary() *Summary {
	if c == nil {
		return &Summary{ExitCodes: map[int]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Uptime:      time.Since(c.startTime),
		TotalStarts: c.totalStarts,
		TotalKills:  c.totalKills,
		TotalBytes:  c.totalBytes,
		Active:      c.activeNow,
		PeakActive:  c.peakActive,
		ExitCodes:   maps.Clone(c.exitCodes),
	}

	if c.observed > 0 {
		s.DurationP50 = seconds(c.durations.Quantile(0.50))
		s.DurationP95 = seconds(c.durations.Quantile(0.95))
		s.DurationP99 = seconds(c.durations.Quantile(0.99))
	}

	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
