package runproc

import (
	"context"
	"iter"
	"time"
)

// Lines iterates over the output until end of stream. Each line may take
// up to timeout to arrive; zero or NoTimeout waits indefinitely. A timeout
// or a done ctx ends the iteration with a non-nil error.
//
//	for line, err := range p.Lines(ctx, 5*time.Second) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(line)
//	}
func (p *Process) Lines(ctx context.Context, timeout time.Duration) iter.Seq2[string, error] {
	if timeout == 0 {
		timeout = NoTimeout
	}
	return func(yield func(string, error) bool) {
		for {
			res, err := p.NextLine(ctx, timeout)
			if err != nil {
				yield("", err)
				return
			}
			switch res.Kind {
			case KindEndOfStream:
				return
			case KindTimedOut:
				yield("", &TimeoutError{Command: p.Command(), Timeout: timeout})
				return
			}
			if !yield(res.Line, nil) {
				return
			}
		}
	}
}
