package bus

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteReaderRecv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fd_delete_fifo")
	require.NoError(t, CreateFifo(path, 0o600))

	go func() {
		w, err := OpenWriter(path)
		if err != nil {
			return
		}
		defer w.Close()
		NewDeleteFifo(w, nil).DeleteAllJobsFromHost("host_a")
	}()

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	op, alias, err := NewDeleteReader(r, 256).Recv()
	require.NoError(t, err)
	assert.Equal(t, OpDeleteAllJobsFromHost, op)
	assert.Equal(t, "host_a", alias)
}

func TestDeleteReaderMultipleFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fd_delete_fifo")
	require.NoError(t, CreateFifo(path, 0o600))

	done := make(chan error, 1)
	go func() {
		w, err := OpenWriter(path)
		if err != nil {
			done <- err
			return
		}
		defer w.Close()
		del := NewDeleteFifo(w, nil)
		if err := del.DeleteAllJobsFromHost("host_a"); err != nil {
			done <- err
			return
		}
		done <- del.DeleteRetrievesFromDir("incoming_dir")
	}()

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	reader := NewDeleteReader(r, 256)

	op1, alias1, err := reader.Recv()
	require.NoError(t, err)
	assert.Equal(t, OpDeleteAllJobsFromHost, op1)
	assert.Equal(t, "host_a", alias1)

	op2, alias2, err := reader.Recv()
	require.NoError(t, err)
	assert.Equal(t, OpDeleteRetrievesFromDir, op2)
	assert.Equal(t, "incoming_dir", alias2)

	require.NoError(t, <-done)
}
