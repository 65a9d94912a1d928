// Package framer turns raw output chunks into trimmed, non-empty lines.
//
// Pipe output only needs splitting. Terminal output additionally carries
// escape sequences and carriage returns, which are removed before the
// text is split so that a sequence can never produce a line on its own.
package framer

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// MaxCarry bounds the bytes held back waiting for a newline or for the
// rest of an escape sequence. A longer partial line is emitted as is.
const MaxCarry = 1024 * 1024

const (
	esc = 0x1b
	bel = 0x07
)

// Framer splits a byte stream into lines.
type Framer interface {
	// Feed consumes the next chunk and returns every line it completes.
	Feed(chunk []byte) []string
	// Flush returns the non-empty residual once the stream has ended.
	Flush() []string
}

// New returns the framer for pipe output, or for terminal output when
// terminal is true.
func New(terminal bool) Framer {
	if terminal {
		return &PTYFramer{}
	}
	return &PipeFramer{}
}

// PipeFramer frames pipe output. \n, \r\n and a bare \r all end a line.
type PipeFramer struct {
	carry []byte
	cr    bool // the last chunk ended in \r, which may start a \r\n
}

// Feed implements Framer.
func (f *PipeFramer) Feed(chunk []byte) []string {
	if f.cr {
		chunk = append([]byte{'\r'}, chunk...)
		f.cr = false
	}
	if n := len(chunk); n > 0 && chunk[n-1] == '\r' {
		chunk = chunk[:n-1]
		f.cr = true
	}

	f.carry = append(f.carry, lineBreaks(chunk)...)
	var lines []string
	f.carry, lines = splitLines(f.carry)
	return lines
}

// Flush implements Framer.
func (f *PipeFramer) Flush() []string {
	rest := f.carry
	f.carry, f.cr = nil, false
	return appendLine(nil, rest)
}

// PTYFramer frames terminal output: escape sequences are stripped and
// carriage returns become line breaks.
type PTYFramer struct {
	raw   []byte // undecoded tail: partial escape sequence or rune
	carry []byte // decoded text after the last newline
}

// Feed implements Framer.
func (f *PTYFramer) Feed(chunk []byte) []string {
	data := append(f.raw, chunk...)
	cut := pendingTail(data)
	if len(data)-cut > MaxCarry {
		cut = len(data)
	}
	f.raw = append([]byte(nil), data[cut:]...)

	f.carry = append(f.carry, normalize(data[:cut])...)
	var lines []string
	f.carry, lines = splitLines(f.carry)
	return lines
}

// Flush implements Framer.
func (f *PTYFramer) Flush() []string {
	rest := append(f.carry, normalize(f.raw)...)
	f.raw, f.carry = nil, nil

	var lines []string
	for _, part := range bytes.Split(rest, []byte{'\n'}) {
		lines = appendLine(lines, part)
	}
	return lines
}

// normalize strips escape sequences and maps \r\n and bare \r to \n.
func normalize(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return lineBreaks([]byte(ansi.Strip(string(b))))
}

// lineBreaks maps \r\n and bare \r to \n.
func lineBreaks(b []byte) []byte {
	if bytes.IndexByte(b, '\r') < 0 {
		return b
	}
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
}

// splitLines returns the bytes after the last newline and the non-empty
// lines before it.
func splitLines(buf []byte) ([]byte, []string) {
	var lines []string
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		lines = appendLine(lines, buf[:i])
		buf = buf[i+1:]
	}
	if len(buf) > MaxCarry {
		lines = appendLine(lines, buf)
		buf = nil
	}
	return append([]byte(nil), buf...), lines
}

func appendLine(lines []string, b []byte) []string {
	s := strings.TrimRightFunc(string(b), unicode.IsSpace)
	if s == "" {
		return lines
	}
	return append(lines, strings.ToValidUTF8(s, string(utf8.RuneError)))
}

// pendingTail returns the offset where an unfinished escape sequence or
// multi-byte rune begins, or len(b) if the chunk ends cleanly.
func pendingTail(b []byte) int {
	if i := bytes.LastIndexByte(b, esc); i >= 0 && !escComplete(b[i:]) {
		return i
	}
	for n := 1; n <= utf8.UTFMax && n <= len(b); n++ {
		start := len(b) - n
		if utf8.RuneStart(b[start]) {
			if !utf8.FullRune(b[start:]) {
				return start
			}
			break
		}
	}
	return len(b)
}

// escComplete reports whether seq, which starts with ESC, holds a whole
// control sequence.
func escComplete(seq []byte) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[': // CSI: parameters and intermediates, then a final byte
		for _, c := range seq[2:] {
			if c >= 0x40 && c <= 0x7e {
				return true
			}
		}
		return false
	case ']', 'P', '_', '^': // string sequences end with BEL or ST
		return bytes.IndexByte(seq, bel) >= 0 || bytes.Contains(seq[2:], []byte{esc, '\\'})
	default:
		return true
	}
}
