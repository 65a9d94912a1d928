package registry

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	// NoActiveMessage is reported when nothing is registered, which
	// usually means the caller itself is stuck rather than a child.
	NoActiveMessage = "NO ACTIVE SUBPROCESSES DETECTED - MAIN PROCESS LIKELY HUNG"

	// StuckHeader introduces the list of active processes.
	StuckHeader = "STUCK SUBPROCESS COMMANDS:"
)

var (
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#9CA3AF") // Medium gray
)

// Dump writes a report of the active entries to w, styled for a terminal
// when w is one. It returns the number of entries reported.
func (r *Registry) Dump(w io.Writer) (int, error) {
	renderer := lipgloss.NewRenderer(w)
	errStyle := renderer.NewStyle().Foreground(colorError).Bold(true)
	warnStyle := renderer.NewStyle().Foreground(colorWarning).Bold(true)
	mutedStyle := renderer.NewStyle().Foreground(colorMuted)

	active := r.Snapshot()
	if len(active) == 0 {
		_, err := fmt.Fprintln(w, errStyle.Render(NoActiveMessage))
		return 0, err
	}

	var b strings.Builder
	b.WriteString(warnStyle.Render(StuckHeader))
	b.WriteByte('\n')
	for i, info := range active {
		fmt.Fprintf(&b, "  %d. cmd=%s %s\n",
			i+1,
			info.Command,
			mutedStyle.Render(fmt.Sprintf("pid=%d duration=%s last_output=%s%s",
				info.PID,
				formatSeconds(info.Duration),
				formatSince(info.SinceLastOutput),
				formatStream(info.Stream),
			)),
		)
	}

	_, err := io.WriteString(w, b.String())
	return len(active), err
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatSince(d time.Duration) string {
	if d < 0 {
		return "no-output"
	}
	return formatSeconds(d)
}

func formatStream(s *StreamStats) string {
	if s == nil {
		return ""
	}
	health := "ok"
	if !s.ReaderHealthy {
		health = "failed"
	}
	return fmt.Sprintf(" bytes=%d buffered=%d reader=%s deadline=%s",
		s.BytesRead, s.Buffered, health, s.Deadline)
}
