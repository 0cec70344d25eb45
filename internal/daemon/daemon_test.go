package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holger24/AFD-sub006/internal/afdpaths"
	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/dst"
	"github.com/holger24/AFD-sub006/internal/hst"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	layout := afdpaths.New(t.TempDir())
	d, err := New(Config{
		Layout:       layout,
		HSTRows:      2,
		DSTRows:      2,
		Create:       true,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func installOneHost(t *testing.T, d *Daemon) int {
	t.Helper()
	require.NoError(t, d.HST.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 2, MaxErrors: 3,
			RealHostname: [2]string{"alpha-a", "alpha-b"}, HostToggleStr: "AB"},
	}))
	row, err := d.HST.Lookup(1)
	require.NoError(t, err)
	return row
}

func TestNewAttachesAndOpensEveryFifo(t *testing.T) {
	d := newTestDaemon(t)
	assert.NotNil(t, d.HST)
	assert.NotNil(t, d.DST)
	assert.NotNil(t, d.Sched)
	assert.NotNil(t, d.Pool)
	assert.NotNil(t, d.AMG)
}

func TestAMGSubmitJobEnqueuesOnScheduler(t *testing.T) {
	d := newTestDaemon(t)
	row := installOneHost(t, d)

	_, err := d.AMG.SubmitJob(1, 'A', map[string][]byte{"report.txt": []byte("hello")})
	require.NoError(t, err)

	assert.Equal(t, 1, d.Sched.QueueLen(row))
}

func TestDrainJobsRoutesIncomingMessageToScheduler(t *testing.T) {
	d := newTestDaemon(t)
	// AllowedTransfers: 0 so the tick loop can't dispatch the job out of
	// the queue before this test observes it having arrived.
	require.NoError(t, d.HST.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 0, MaxErrors: 3},
	}))
	row, err := d.HST.Lookup(1)
	require.NoError(t, err)
	d.Router.Register(42, row)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	w, err := bus.OpenWriter(d.cfg.Layout.JobFifo())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, bus.NewJobFifo(w).Send(&bus.JobMessage{
		JobID:       42,
		FilesToSend: 1,
		Priority:    'A',
	}))

	require.Eventually(t, func() bool {
		return d.Sched.QueueLen(row) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDrainAFDCmdStopsScheduler(t *testing.T) {
	d := newTestDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	w, err := bus.OpenWriter(d.cfg.Layout.AFDCmdFifo())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, bus.NewCmdFifo(w).Send(bus.OpStopFD))

	require.Eventually(t, func() bool {
		return d.Sched.Draining()
	}, time.Second, 10*time.Millisecond)
}

func TestDrainDeleteClearsHostQueue(t *testing.T) {
	d := newTestDaemon(t)
	// AllowedTransfers: 0 keeps the job parked in the ready-queue so the
	// tick loop's own dispatch can't race this test's delete assertion.
	require.NoError(t, d.HST.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 0, MaxErrors: 3},
	}))
	row, err := d.HST.Lookup(1)
	require.NoError(t, err)
	d.Router.Register(7, row)
	_, err = d.AMG.SubmitJob(1, 'A', map[string][]byte{"f": []byte("x")})
	require.NoError(t, err)
	require.Equal(t, 1, d.Sched.QueueLen(row))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	w, err := bus.OpenWriter(d.cfg.Layout.FDDeleteFifo())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, bus.NewDeleteFifo(w, nil).DeleteAllJobsFromHost("alpha"))

	require.Eventually(t, func() bool {
		return d.Sched.QueueLen(row) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDrainDeleteRetrievesFromDirPurgesQueuedDirJobs(t *testing.T) {
	d := newTestDaemon(t)
	// AllowedTransfers: 0 keeps the job parked in the ready-queue so the
	// tick loop's own dispatch can't race this test's delete assertion.
	require.NoError(t, d.HST.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 0, MaxErrors: 3},
	}))
	row, err := d.HST.Lookup(1)
	require.NoError(t, err)
	require.NoError(t, d.DST.InitRow(0, &dst.DirSlot{DirID: 9, DirAlias: "incoming_dir", InConfig: true}))

	_, err = d.AMG.SubmitRetrieveJob(1, 9, 'A', map[string][]byte{"f": []byte("x")})
	require.NoError(t, err)
	require.Equal(t, 1, d.Sched.QueueLen(row))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go d.Run(ctx)

	w, err := bus.OpenWriter(d.cfg.Layout.FDDeleteFifo())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, bus.NewDeleteFifo(w, nil).DeleteRetrievesFromDir("incoming_dir"))

	require.Eventually(t, func() bool {
		return d.Sched.QueueLen(row) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDrainWakeDispatchesQueuedJobWithoutWaitingForTick(t *testing.T) {
	layout := afdpaths.New(t.TempDir())
	d, err := New(Config{
		Layout: layout, HSTRows: 1, DSTRows: 1, Create: true,
		// Deliberately long: the ticker must not fire inside this
		// test's timeout, so any dispatch observed can only have come
		// from drainWake's Recv, not tickLoop's.
		PollInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.HST.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 1, MaxErrors: 3, HostStatus: hst.SimulateSendMode},
	}))
	row, err := d.HST.Lookup(1)
	require.NoError(t, err)

	_, err = d.AMG.SubmitJob(1, 'A', map[string][]byte{"f": []byte("x")})
	require.NoError(t, err)
	require.Equal(t, 1, d.Sched.QueueLen(row))

	// Write the wake-up byte before Run starts: the non-blocking reader
	// was already opened by New, so the kernel buffers it, and
	// drainWake's very first Recv (once Run starts) picks it up without
	// ever going through its own EAGAIN/PollInterval backoff sleep.
	w, err := bus.OpenWriter(d.cfg.Layout.FDWakeUpFifo())
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, bus.NewWakeUpFifo(w).Send())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go d.Run(ctx)

	require.Eventually(t, func() bool {
		return d.Sched.QueueLen(row) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDirRowForAliasResolvesForceRemoteDirCheck(t *testing.T) {
	d := newTestDaemon(t)
	require.NoError(t, d.DST.InitRow(0, &dst.DirSlot{DirID: 9, DirAlias: "incoming_dir"}))

	row, ok := d.dirRowForAlias("incoming_dir")
	require.True(t, ok)
	assert.Equal(t, 0, row)

	_, ok = d.dirRowForAlias("no_such_dir")
	assert.False(t, ok)
}

func TestHostRowForAliasLookup(t *testing.T) {
	d := newTestDaemon(t)
	row := installOneHost(t, d)

	got, ok := d.hostRowForAlias("alpha")
	require.True(t, ok)
	assert.Equal(t, row, got)

	_, ok = d.hostRowForAlias("no_such_host")
	assert.False(t, ok)
}
