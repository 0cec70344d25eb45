// Package afdlog is the structured logging and wire trace-line
// framing layer shared across AFD's components, modeled on the
// teacher's fs/log package (slog-backed, field-attached loggers).
package afdlog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// New returns a slog.Logger writing JSON to os.Stderr at level,
// matching the teacher's fs/log convention of a single structured
// sink rather than ad hoc fmt.Printf calls.
func New(level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// Component returns a logger with a fixed "component" field, the
// convention every AFD package uses to identify its log lines (HST,
// DST, FD, PW, RAP, CTR, CFG).
func Component(base *slog.Logger, name string) *slog.Logger {
	return base.With("component", name)
}

// DebugLevel is the host-scoped debug cascade of spec.md §4.5:
// NORMAL produces only trans_log; DEBUG mirrors to
// trans_debug_log_fifo; TRACE additionally includes payload dumps;
// FULL_TRACE includes raw protocol frames.
type DebugLevel int

const (
	Normal DebugLevel = iota
	Debug
	Trace
	FullTrace
)

// TraceLine formats one line of the §4.5 wire trace-line framing:
// "<DD HH:MM:SS> <sign> <hostname>[<N>]: <message> @<hex id> (<file> <line>)\n"
type TraceLine struct {
	When     time.Time
	Sign     byte // '+' success-path, '-' error-path, by convention
	Hostname string
	Slot     int
	Message  string
	ID       uint64
	File     string
	Line     int
}

// Format renders t in the exact wire shape documented in §4.5.
// Unprintable bytes in Message are replaced by '.', and only the text
// before the first CR/LF is rendered — callers that need one frame
// per line should call FormatLines instead.
func (t TraceLine) Format() string {
	msg := sanitize(firstLine(t.Message))
	return fmt.Sprintf("<%02d %02d:%02d:%02d> %c %s[%d]: %s @%x (%s %d)\n",
		t.When.Day(), t.When.Hour(), t.When.Minute(), t.When.Second(),
		t.Sign, t.Hostname, t.Slot, msg, t.ID, t.File, t.Line)
}

// FormatLines splits Message on CR/LF boundaries and frames each line
// individually, per §4.5's "multi-line server responses are split on
// CR/LF boundaries and each line is individually framed".
func (t TraceLine) FormatLines() []string {
	raw := strings.ReplaceAll(t.Message, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	parts := strings.Split(raw, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		cp := t
		cp.Message = p
		lines = append(lines, cp.Format())
	}
	if len(lines) == 0 {
		cp := t
		cp.Message = ""
		lines = append(lines, cp.Format())
	}
	return lines
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// sanitize replaces unprintable bytes with '.' before logging, per
// §4.5: "Unprintable bytes in server responses are replaced by '.'".
func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c < 0x20 || c == 0x7f {
			b[i] = '.'
		}
	}
	return string(b)
}
