package bus

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMessageRoundTrip(t *testing.T) {
	m := &JobMessage{
		CreationTime: time.Unix(1700000000, 0),
		FileSize:     123456,
		JobID:        7,
		SplitJobCtr:  2,
		FilesToSend:  3,
		UniqueNumber: 99,
		DirNo:        0x1a,
		Priority:     '5',
		Originator:   OriginatorNormal,
	}
	frame := m.Encode()
	assert.Len(t, frame, JobMessageSize)

	got, err := DecodeJobMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, m.FileSize, got.FileSize)
	assert.Equal(t, m.JobID, got.JobID)
	assert.Equal(t, m.SplitJobCtr, got.SplitJobCtr)
	assert.Equal(t, m.FilesToSend, got.FilesToSend)
	assert.Equal(t, m.UniqueNumber, got.UniqueNumber)
	assert.Equal(t, m.DirNo, got.DirNo)
	assert.Equal(t, m.Priority, got.Priority)
	assert.Equal(t, m.Originator, got.Originator)
	assert.True(t, m.CreationTime.Equal(got.CreationTime))
}

func TestDecodeJobMessageRejectsWrongSize(t *testing.T) {
	_, err := DecodeJobMessage(make([]byte, JobMessageSize-1))
	assert.Error(t, err)
}

func TestConfirmationRoundTrip(t *testing.T) {
	c := &Confirmation{
		FileSize:         4096,
		JobNumber:        42,
		UniqueNameOffset: 3,
		FileNameLength:   8,
		ConfirmationType: ConfirmDone,
		Hostname:         "alpha",
		FileName:         "report.txt",
	}
	frame, err := c.Encode()
	require.NoError(t, err)
	assert.Len(t, frame, DEMCDSize)

	got, err := DecodeConfirmation(frame)
	require.NoError(t, err)
	assert.Equal(t, c.FileSize, got.FileSize)
	assert.Equal(t, c.JobNumber, got.JobNumber)
	assert.Equal(t, c.ConfirmationType, got.ConfirmationType)
	assert.Equal(t, c.Hostname, got.Hostname)
	assert.Equal(t, c.FileName, got.FileName)
}

func TestConfirmationRejectsOversizedHostname(t *testing.T) {
	c := &Confirmation{Hostname: string(make([]byte, MaxHostnameLen+1))}
	_, err := c.Encode()
	assert.Error(t, err)
}

func TestDeleteMessageRoundTrip(t *testing.T) {
	frame, err := EncodeDeleteMessage(OpDeleteRetrievesFromDir, "incoming_dir")
	require.NoError(t, err)

	op, alias, err := DecodeDeleteMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, OpDeleteRetrievesFromDir, op)
	assert.Equal(t, "incoming_dir", alias)
}

func TestDeleteMessageRejectsEmbeddedNUL(t *testing.T) {
	_, err := EncodeDeleteMessage(OpDeleteAllJobsFromHost, "bad\x00alias")
	assert.Error(t, err)
}

func TestFifoRoundTripThroughRealPipe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retry.fifo")
	require.NoError(t, CreateFifo(path, 0o600))

	done := make(chan error, 1)
	go func() {
		w, err := OpenWriter(path)
		if err != nil {
			done <- err
			return
		}
		defer w.Close()
		done <- NewRetryFifo(w).Send(12)
	}()

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	row, err := NewRetryFifo(r).Recv()
	require.NoError(t, err)
	assert.Equal(t, 12, row)
	require.NoError(t, <-done)
}

func TestReadFrameShortOnClosedWriter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.fifo")
	require.NoError(t, CreateFifo(path, 0o600))

	go func() {
		w, err := OpenWriter(path)
		if err != nil {
			return
		}
		// Write fewer bytes than the reader expects, then close: the
		// reader must see ErrShortFrame rather than a truncated value.
		w.f.Write([]byte{1, 2})
		w.Close()
	}()

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 4)
	err = r.ReadFrame(buf)
	assert.ErrorIs(t, err, ErrShortFrame)
}
