package runproc

import "context"

// Completed is the outcome of Run.
type Completed struct {
	Command  string
	ExitCode int
	// Stdout is the merged output, one line per line, without a trailing
	// newline.
	Stdout string
}

// Run starts cmd, waits for it and collects its output. A deadline in
// opts.Timeout that passes returns a *TimeoutError. With check set, a
// non-zero exit returns an *ExitError. The result is returned alongside
// either error whenever the process was started.
func Run(ctx context.Context, cmd Command, check bool, opts *Options) (*Completed, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.DeferStart = false

	p, err := New(cmd, &o)
	if err != nil {
		return nil, err
	}

	code, waitErr := p.Wait(ctx, EchoNone, 0)
	res := &Completed{
		Command:  p.Command(),
		ExitCode: code,
		Stdout:   p.OutputText(),
	}
	if waitErr != nil {
		return res, waitErr
	}
	if check && code != 0 {
		return res, &ExitError{Command: res.Command, ExitCode: code, Output: res.Stdout}
	}
	return res, nil
}
