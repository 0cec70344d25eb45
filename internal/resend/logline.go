// Package resend implements the Resend / Archive Pipeline (RAP,
// spec.md §4.6, §6.4, §6.5, §4.7).
package resend

import (
	"fmt"
	"strconv"
	"strings"
)

// LogEntry is one parsed output-log line (spec.md §6.4): fixed date
// and alias columns, then a protocol type token whose width (1, 3, or
// 5 bytes) is either fixed at 1 or detected from the two-space gap
// that follows it, then separator-delimited fields.
type LogEntry struct {
	Date           string
	Alias          string
	Type           string
	FileName       string
	RemoteFileName string // optional
	Size           int64
	DurationMillis int64
	Retries        int // optional, -1 if absent
	JobID          uint32
	UniqueString   string
	ArchiveDir     string
}

const (
	dateWidth  = 13 // fixed-width date block per §6.4
	aliasWidth = 8  // fixed-width alias column
	separator  = '|'
)

// ParseOutputLogLine parses one ASCII, '|'-free (outside the
// separator-delimited tail) output-log line per §6.4's column layout.
//
// Two branches exist for locating the type token, both implemented
// and selectable rather than one being assumed dead (spec.md §9 Open
// Question, "ACTIVATE_THIS_AFTER_VERSION_14"):
//   - legacy (version < 14): the type token is always exactly 1 byte.
//   - version-14+: the width is the first of 1, 3, 5 bytes (e.g. "F",
//     "FTP", "PEXEC") at which the token is followed by two spaces,
//     falling back to 1 if none matches.
func ParseOutputLogLine(line string, activateVersion14Detection bool) (*LogEntry, error) {
	if len(line) < dateWidth+1+aliasWidth+1 {
		return nil, fmt.Errorf("resend: log line too short: %q", line)
	}
	e := &LogEntry{}
	e.Date = line[:dateWidth]
	rest := line[dateWidth+1:] // skip the single space separator
	if len(rest) < aliasWidth {
		return nil, fmt.Errorf("resend: log line missing alias column: %q", line)
	}
	e.Alias = strings.TrimRight(rest[:aliasWidth], " ")
	rest = rest[aliasWidth+1:] // skip the space after alias

	var typeWidth int
	if activateVersion14Detection {
		typeWidth = detectTypeWidthV14(rest)
	} else {
		typeWidth = 1
	}
	if len(rest) < typeWidth+2 {
		return nil, fmt.Errorf("resend: log line missing type token: %q", line)
	}
	e.Type = rest[:typeWidth]
	rest = rest[typeWidth:]
	rest = strings.TrimLeft(rest, " ") // two-space gap before filename

	fields, err := splitEscapedFields(rest)
	if err != nil {
		return nil, err
	}
	if len(fields) < 6 {
		return nil, fmt.Errorf("resend: log line has %d fields, want at least 6: %q", len(fields), line)
	}
	idx := 0
	e.FileName = fields[idx]
	idx++
	// RemoteFileName, Retries are optional; fixed fields from the end
	// are Size, Duration, JobID, UniqueString, ArchiveDir (5 fields),
	// so anything beyond that count before them is optional.
	optionalCount := len(fields) - idx - 5
	if optionalCount < 0 {
		return nil, fmt.Errorf("resend: log line missing trailing fields: %q", line)
	}
	e.Retries = -1
	if optionalCount >= 1 {
		e.RemoteFileName = fields[idx]
		idx++
		optionalCount--
	}
	if optionalCount >= 1 {
		r, err := strconv.Atoi(fields[idx])
		if err != nil {
			return nil, fmt.Errorf("resend: bad retries field %q: %w", fields[idx], err)
		}
		e.Retries = r
		idx++
	}

	size, err := strconv.ParseInt(fields[idx], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("resend: bad size field %q: %w", fields[idx], err)
	}
	e.Size = size
	idx++

	dur, err := strconv.ParseInt(fields[idx], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("resend: bad duration field %q: %w", fields[idx], err)
	}
	e.DurationMillis = dur
	idx++

	jobID, err := strconv.ParseUint(fields[idx], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("resend: bad job_id field %q: %w", fields[idx], err)
	}
	e.JobID = uint32(jobID)
	idx++

	e.UniqueString = fields[idx]
	idx++
	e.ArchiveDir = unescapeSpaces(fields[idx])

	return e, nil
}

// detectTypeWidthV14 implements the version-14+ branch. Per §6.4 the
// type token is always immediately followed by a two-space gap before
// the filename, so the gap's position pins down the token's width,
// which is always 1, 3, or 5 bytes.
func detectTypeWidthV14(rest string) int {
	for _, w := range [...]int{1, 3, 5} {
		if len(rest) > w+1 && rest[w] == ' ' && rest[w+1] == ' ' {
			return w
		}
	}
	return 1
}

// splitEscapedFields splits on SEPARATOR_CHAR, honoring "\ " as an
// escaped literal space inside a field (spec.md §6.4: "spaces inside
// file names are escaped as \ in the archive-path reconstruction").
func splitEscapedFields(s string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case separator:
			fields = append(fields, cur.String())
			cur.Reset()
		case '\\':
			if i+1 < len(s) {
				cur.WriteByte(s[i+1])
				i++
			}
		default:
			cur.WriteByte(s[i])
		}
	}
	fields = append(fields, cur.String())
	return fields, nil
}

func unescapeSpaces(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
