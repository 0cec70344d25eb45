// Package bus implements the Message Bus (MB, spec.md §4.3): named
// POSIX fifos carrying fixed-length, atomically-written binary
// messages between HST/DST, the File Distributor, and Protocol
// Workers. There is no cross-fifo ordering guarantee (spec.md §4.3);
// callers MUST NOT assume one.
package bus

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Fifo wraps one named pipe opened for either reading or writing. The
// fixed-length framing guarantee of spec.md §4.3 ("atomicity: every
// message is written in one syscall <= pipe-atomic-write limit") is
// enforced by the message-specific codecs in this package, not here;
// Fifo itself is a thin, blocking byte pipe.
type Fifo struct {
	path string
	f    *os.File
}

// CreateFifo makes the named pipe at path if it does not already
// exist. Mode is the usual Unix permission bits (e.g. 0o600).
func CreateFifo(path string, mode uint32) error {
	err := unix.Mkfifo(path, mode)
	if err != nil && !os.IsExist(err) {
		return fmt.Errorf("bus: mkfifo %s: %w", path, err)
	}
	return nil
}

// OpenWriter opens path for writing. Per spec.md §4.3's back-pressure
// rule, writes block rather than drop when the reader is slow; opening
// for write blocks until a reader is present, matching POSIX fifo
// semantics.
func OpenWriter(path string) (*Fifo, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("bus: open writer %s: %w", path, err)
	}
	return &Fifo{path: path, f: f}, nil
}

// OpenReader opens path for reading.
func OpenReader(path string) (*Fifo, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("bus: open reader %s: %w", path, err)
	}
	return &Fifo{path: path, f: f}, nil
}

// OpenReaderNonBlock opens path for reading without blocking until a
// writer appears, used by the FD scheduling loop to drain command
// fifos without stalling (spec.md §4.4 "drain command fifos
// non-blocking").
func OpenReaderNonBlock(path string) (*Fifo, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("bus: open nonblock reader %s: %w", path, err)
	}
	return &Fifo{path: path, f: f}, nil
}

// Close closes the underlying file descriptor.
func (p *Fifo) Close() error { return p.f.Close() }

// WriteFrame writes b in a single syscall, satisfying the atomicity
// rule of spec.md §4.3. Callers must keep len(b) within the platform's
// pipe-atomic-write limit (PIPE_BUF, typically 4096 bytes on Linux);
// ErrFrameTooLarge guards against accidental violations.
func (p *Fifo) WriteFrame(b []byte) error {
	if len(b) > MaxAtomicWrite {
		return ErrFrameTooLarge
	}
	n, err := p.f.Write(b)
	if err != nil {
		return fmt.Errorf("bus: write %s: %w", p.path, err)
	}
	if n != len(b) {
		return fmt.Errorf("bus: short write to %s: wrote %d of %d bytes", p.path, n, len(b))
	}
	return nil
}

// ReadFrame reads exactly len(b) bytes into b, matching the
// fixed-length framing every message class in §6 depends on. A writer
// interrupted mid-message never produces a short frame on a
// POSIX fifo (writes below PIPE_BUF are atomic), but defensively
// ReadFrame still treats a partial read followed by EOF as
// ErrShortFrame rather than returning truncated data (B2).
func (p *Fifo) ReadFrame(b []byte) error {
	total := 0
	for total < len(b) {
		n, err := p.f.Read(b[total:])
		total += n
		if err != nil {
			if total == 0 {
				return fmt.Errorf("bus: read %s: %w", p.path, err)
			}
			return fmt.Errorf("%w: got %d of %d bytes from %s: %v", ErrShortFrame, total, len(b), p.path, err)
		}
		if n == 0 {
			break
		}
	}
	if total != len(b) {
		return fmt.Errorf("%w: got %d of %d bytes from %s", ErrShortFrame, total, len(b), p.path)
	}
	return nil
}

// ReadByte reads a single byte, for callers that must inspect a frame's
// leading opcode before they know how long the rest of the frame is
// (FD_CMD_FIFO mixes fixed single-byte opcodes with the variable-length
// FORCE_REMOTE_DIR_CHECK framing; see FDCmdReader).
func (p *Fifo) ReadByte() (byte, error) {
	var buf [1]byte
	if err := p.ReadFrame(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUntilNUL reads bytes one at a time up to maxLen, stopping at and
// discarding a trailing NUL. It returns ErrShortFrame if maxLen bytes
// are consumed with no NUL seen.
func (p *Fifo) ReadUntilNUL(maxLen int) (string, error) {
	buf := make([]byte, 0, maxLen)
	for len(buf) < maxLen {
		b, err := p.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", fmt.Errorf("%w: no NUL terminator within %d bytes", ErrShortFrame, maxLen)
}

// MaxAtomicWrite is the conservative cap this package enforces on any
// single bus frame, matching Linux's PIPE_BUF (spec.md §4.3).
const MaxAtomicWrite = 4096

var (
	// ErrFrameTooLarge is returned when a caller asks to write a frame
	// larger than MaxAtomicWrite, which would risk interleaving with
	// another writer's message.
	ErrFrameTooLarge = fmt.Errorf("bus: frame exceeds atomic write limit")
	// ErrShortFrame is returned by ReadFrame when the fifo closed (or
	// its writer vanished) before a full fixed-length message arrived.
	ErrShortFrame = fmt.Errorf("bus: short frame")
)
