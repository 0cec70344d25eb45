package bus

import (
	"encoding/binary"
	"fmt"
)

// RetryFifo wraps RETRY_FD_FIFO (spec.md §6.1): a 4-byte host slot
// index, native endianness.
type RetryFifo struct {
	f *Fifo
}

// NewRetryFifo wraps an already-open fifo.
func NewRetryFifo(f *Fifo) *RetryFifo { return &RetryFifo{f: f} }

// Send requests a retry for the host at row.
func (r *RetryFifo) Send(row int) error {
	if row < 0 || row > int(^uint32(0)) {
		return fmt.Errorf("bus: retry row %d out of range", row)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(row))
	return r.f.WriteFrame(buf[:])
}

// Recv reads the next retry request.
func (r *RetryFifo) Recv() (int, error) {
	var buf [4]byte
	if err := r.f.ReadFrame(buf[:]); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(buf[:])), nil
}

// Close closes the underlying fifo.
func (r *RetryFifo) Close() error { return r.f.Close() }

// WakeUpFifo wraps FD_WAKE_UP_FIFO: a single arbitrary byte used only
// to unblock a reader waiting in a select/poll loop.
type WakeUpFifo struct {
	f *Fifo
}

// NewWakeUpFifo wraps an already-open fifo.
func NewWakeUpFifo(f *Fifo) *WakeUpFifo { return &WakeUpFifo{f: f} }

// Send writes one wake-up byte.
func (w *WakeUpFifo) Send() error { return w.f.WriteFrame([]byte{0}) }

// Recv blocks until a wake-up byte arrives.
func (w *WakeUpFifo) Recv() error {
	var buf [1]byte
	return w.f.ReadFrame(buf[:])
}

// Close closes the underlying fifo.
func (w *WakeUpFifo) Close() error { return w.f.Close() }

// DelTimeJobFifo wraps DEL_TIME_JOB_FIFO: an alias string plus NUL.
type DelTimeJobFifo struct {
	f *Fifo
}

// NewDelTimeJobFifo wraps an already-open fifo.
func NewDelTimeJobFifo(f *Fifo) *DelTimeJobFifo { return &DelTimeJobFifo{f: f} }

// Send requests deletion of the timer-triggered jobs for alias.
func (d *DelTimeJobFifo) Send(alias string) error {
	if len(alias)+1 > MaxAtomicWrite {
		return ErrFrameTooLarge
	}
	buf := append([]byte(alias), 0)
	return d.f.WriteFrame(buf)
}

// Recv reads the next alias request.
func (d *DelTimeJobFifo) Recv(maxLen int) (string, error) {
	return d.f.ReadUntilNUL(maxLen + 1)
}

// Close closes the underlying fifo.
func (d *DelTimeJobFifo) Close() error { return d.f.Close() }
