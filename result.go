package runproc

import "github.com/randomizedcoder/go-runproc/internal/outq"

// Kind tags what a line retrieval produced.
type Kind int

const (
	// KindLine means Result.Line holds the next line of output.
	KindLine Kind = iota
	// KindEndOfStream means no more output will arrive. It is reported
	// again on every later call.
	KindEndOfStream
	// KindTimedOut means the wait ended before a line arrived. For a
	// non-blocking call this is "no data yet".
	KindTimedOut
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindEndOfStream:
		return "end_of_stream"
	case KindTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is one line retrieval.
type Result struct {
	Kind Kind
	Line string
}

// IsLine reports whether r carries a line.
func (r Result) IsLine() bool { return r.Kind == KindLine }

// IsEnd reports whether r is the end of stream.
func (r Result) IsEnd() bool { return r.Kind == KindEndOfStream }

func resultFrom(line string, st outq.Status) Result {
	switch st {
	case outq.StatusLine:
		return Result{Kind: KindLine, Line: line}
	case outq.StatusEnd:
		return Result{Kind: KindEndOfStream}
	default:
		return Result{Kind: KindTimedOut}
	}
}
