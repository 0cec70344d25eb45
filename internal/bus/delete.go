package bus

import (
	"bytes"
	"fmt"
)

// EncodeDeleteMessage builds the FD_DELETE_FIFO wire format of
// spec.md §6.1: {opcode, payload, 0x00 terminator}, payload an alias
// string. An alias whose frame would exceed MaxAtomicWrite is
// rejected with ErrFrameTooLarge.
func EncodeDeleteMessage(op Opcode, alias string) ([]byte, error) {
	if len(alias)+2 > MaxAtomicWrite {
		return nil, ErrFrameTooLarge
	}
	if bytes.IndexByte([]byte(alias), 0) >= 0 {
		return nil, fmt.Errorf("bus: alias %q contains an embedded NUL", alias)
	}
	buf := make([]byte, 0, len(alias)+2)
	buf = append(buf, byte(op))
	buf = append(buf, alias...)
	buf = append(buf, 0)
	return buf, nil
}

// DecodeDeleteMessage parses a frame produced by EncodeDeleteMessage.
func DecodeDeleteMessage(frame []byte) (Opcode, string, error) {
	if len(frame) < 2 {
		return 0, "", fmt.Errorf("bus: delete message too short")
	}
	if frame[len(frame)-1] != 0 {
		return 0, "", fmt.Errorf("bus: delete message missing NUL terminator")
	}
	return Opcode(frame[0]), string(frame[1 : len(frame)-1]), nil
}

// DeleteFifo is the FD-side pair of fifos used by internal/dst to emit
// DELETE_RETRIEVES_FROM_DIR (on FD_DELETE_FIFO) and
// FORCE_REMOTE_DIR_CHECK (on FD_CMD_FIFO, reusing the same
// opcode+alias+NUL framing for the directory identity rather than the
// bare single-byte form documented for FD_CMD_FIFO's other opcodes,
// since this command alone needs a target; see DESIGN.md).
type DeleteFifo struct {
	del *Fifo // FD_DELETE_FIFO, variable-length opcode+payload frames
	cmd *Fifo // FD_CMD_FIFO, reused here with the same alias framing
}

// NewDeleteFifo wraps the two already-open writer fifos.
func NewDeleteFifo(del, cmd *Fifo) *DeleteFifo {
	return &DeleteFifo{del: del, cmd: cmd}
}

// DeleteRetrievesFromDir emits DELETE_RETRIEVES_FROM_DIR for alias.
func (d *DeleteFifo) DeleteRetrievesFromDir(alias string) error {
	frame, err := EncodeDeleteMessage(OpDeleteRetrievesFromDir, alias)
	if err != nil {
		return err
	}
	return d.del.WriteFrame(frame)
}

// DeleteAllJobsFromHost emits DELETE_ALL_JOBS_FROM_HOST for alias.
func (d *DeleteFifo) DeleteAllJobsFromHost(alias string) error {
	frame, err := EncodeDeleteMessage(OpDeleteAllJobsFromHost, alias)
	if err != nil {
		return err
	}
	return d.del.WriteFrame(frame)
}

// ForceRemoteDirCheck emits FORCE_REMOTE_DIR_CHECK for alias.
func (d *DeleteFifo) ForceRemoteDirCheck(alias string) error {
	frame, err := EncodeDeleteMessage(OpForceRemoteDirCheck, alias)
	if err != nil {
		return err
	}
	return d.cmd.WriteFrame(frame)
}

// Close closes both underlying fifos.
func (d *DeleteFifo) Close() error {
	err1 := d.del.Close()
	err2 := d.cmd.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// DeleteReader is the consumer side of FD_DELETE_FIFO: every frame is
// opcode+payload+NUL, so unlike FD_CMD_FIFO there is no fixed-length
// frame to disambiguate against.
type DeleteReader struct {
	r           *Fifo
	maxAliasLen int
}

// NewDeleteReader wraps an already-open reader fifo.
func NewDeleteReader(r *Fifo, maxAliasLen int) *DeleteReader {
	return &DeleteReader{r: r, maxAliasLen: maxAliasLen}
}

// Recv reads the next opcode+alias frame.
func (d *DeleteReader) Recv() (Opcode, string, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, "", err
	}
	alias, err := d.r.ReadUntilNUL(d.maxAliasLen)
	if err != nil {
		return 0, "", err
	}
	return Opcode(b), alias, nil
}

// Close closes the underlying fifo.
func (d *DeleteReader) Close() error { return d.r.Close() }
