package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/holger24/AFD-sub006/internal/afdlog"
	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/worker/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProto struct {
	connectErr error
	sendErr    error
	closed     bool
	sent       []protocol.File
}

func (f *fakeProto) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeProto) Send(ctx context.Context, file protocol.File, p protocol.Progress) error {
	f.sent = append(f.sent, file)
	if p != nil {
		p(file.Size)
	}
	return f.sendErr
}
func (f *fakeProto) Close() error { f.closed = true; return nil }

func newTestHST(t *testing.T) (*hst.Table, int) {
	t.Helper()
	dir := t.TempDir()
	tbl, err := hst.Attach(filepath.Join(dir, "hst.dat"), filepath.Join(dir, "hst.lck"), 1, true)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	require.NoError(t, tbl.ReloadFromConfig([]hst.ConfigHost{{HostID: 1, HostAlias: "alpha", AllowedTransfers: 1}}))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)
	return tbl, row
}

func TestWorkerHappyPath(t *testing.T) {
	tbl, row := newTestHST(t)
	proto := &fakeProto{}
	staging := t.TempDir()

	var confirmed *bus.Confirmation
	w := New(Options{
		Files:             []protocol.File{{LocalPath: "x", RemoteName: "x", Size: 10}},
		Hostname:          "alpha",
		ConfirmationsUsed: true,
		StagingDir:        staging,
	}, proto, tbl, row, 0, nil, func(c *bus.Confirmation) { confirmed = c })

	w.Run(context.Background())

	res := w.Result()
	assert.NoError(t, res.Err)
	assert.Equal(t, int64(1), res.FilesDone)
	assert.Equal(t, int64(10), res.BytesDone)
	assert.True(t, proto.closed)
	require.NotNil(t, confirmed)
	assert.Equal(t, bus.ConfirmDone, confirmed.ConfirmationType)
	_, err := os.Stat(staging)
	assert.True(t, os.IsNotExist(err), "staging dir must be removed on success")
}

func TestWorkerConnectFailure(t *testing.T) {
	tbl, row := newTestHST(t)
	proto := &fakeProto{connectErr: assertErr("boom")}

	w := New(Options{Files: []protocol.File{{Size: 1}}}, proto, tbl, row, 0, nil, nil)
	w.Run(context.Background())

	res := w.Result()
	assert.Error(t, res.Err)
	assert.Equal(t, int64(0), res.FilesDone)
}

func TestWorkerSimulateModeSkipsNetwork(t *testing.T) {
	tbl, row := newTestHST(t)
	staging := t.TempDir()
	w := New(Options{
		Files:      []protocol.File{{Size: 42}},
		Simulate:   true,
		StagingDir: staging,
	}, nil, tbl, row, 0, nil, nil)

	w.Run(context.Background())

	res := w.Result()
	assert.NoError(t, res.Err)
	assert.Equal(t, int64(42), res.BytesDone)
	_, err := os.Stat(staging)
	assert.True(t, os.IsNotExist(err))
}

func TestWorkerCancellation(t *testing.T) {
	tbl, row := newTestHST(t)
	proto := &fakeProto{}
	w := New(Options{Files: []protocol.File{{Size: 1}, {Size: 1}}}, proto, tbl, row, 0, nil, nil)
	w.Cancel()
	w.Run(context.Background())

	res := w.Result()
	assert.True(t, res.Cancelled)
	assert.True(t, proto.closed)
}

func TestWorkerTracesThroughSink(t *testing.T) {
	tbl, row := newTestHST(t)
	proto := &fakeProto{}
	var lines []string
	trace := func(line string, level afdlog.DebugLevel) { lines = append(lines, line) }
	w := New(Options{Files: []protocol.File{{Size: 1}}, Hostname: "alpha"}, proto, tbl, row, 0, trace, nil)

	w.Run(context.Background())

	assert.True(t, waitDone(w), "worker must close Done() after Run returns")
	assert.NotEmpty(t, lines)
}

func waitDone(w *Worker) bool {
	select {
	case <-w.Done():
		return true
	case <-time.After(time.Second):
		return false
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
