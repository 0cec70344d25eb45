package sched

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	done      chan struct{}
	result    Result
	cancelled bool
}

func newFakeHandle(res Result) *fakeHandle {
	h := &fakeHandle{done: make(chan struct{}), result: res}
	close(h.done)
	return h
}

func (h *fakeHandle) Cancel()                  { h.cancelled = true }
func (h *fakeHandle) Done() <-chan struct{}     { return h.done }
func (h *fakeHandle) Result() Result            { return h.result }

type fakeDispatcher struct {
	results  []Result
	dispatch int
	slots    []int
	jobs     []uint32
}

func (d *fakeDispatcher) Dispatch(job *Job, procID uint32, slot int) (Handle, error) {
	var res Result
	if d.dispatch < len(d.results) {
		res = d.results[d.dispatch]
	}
	d.dispatch++
	d.slots = append(d.slots, slot)
	d.jobs = append(d.jobs, job.JobID)
	return newFakeHandle(res), nil
}

func newTestHost(t *testing.T, allowedTransfers uint8) (*hst.Table, int) {
	t.Helper()
	dir := t.TempDir()
	tbl, err := hst.Attach(filepath.Join(dir, "hst.dat"), filepath.Join(dir, "hst.lck"), 1, true)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	require.NoError(t, tbl.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: allowedTransfers, MaxErrors: 3},
	}))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)
	return tbl, row
}

func TestDispatchRespectsFreeSlots(t *testing.T) {
	tbl, row := newTestHost(t, 1)
	disp := &fakeDispatcher{}
	s := New(tbl, disp, Config{})

	s.Enqueue(&Job{HostRow: row, JobID: 1, CreationTime: time.Unix(1, 0)})
	s.Enqueue(&Job{HostRow: row, JobID: 2, CreationTime: time.Unix(2, 0)})

	require.NoError(t, s.Tick(time.Now()))
	assert.Equal(t, 1, disp.dispatch, "only one slot is free")
	assert.Equal(t, 1, s.QueueLen(row))
}

func TestDispatchOrdersByPriorityThenTime(t *testing.T) {
	tbl, row := newTestHost(t, 2)
	disp := &fakeDispatcher{}
	s := New(tbl, disp, Config{})

	low := &Job{HostRow: row, JobID: 1, Priority: '1', CreationTime: time.Unix(1, 0)}
	high := &Job{HostRow: row, JobID: 2, Priority: '9', CreationTime: time.Unix(5, 0)}
	s.Enqueue(low)
	s.Enqueue(high)

	require.NoError(t, s.Tick(time.Now()))
	assert.Equal(t, 2, disp.dispatch)
	assert.Equal(t, []uint32{2, 1}, disp.jobs, "the higher-priority job must be dispatched first")
	assert.ElementsMatch(t, []int{0, 1}, disp.slots, "each concurrent job must land in its own acquired HST job slot")
}

func TestReapReleasesSlotAndAppliesBackoffOnError(t *testing.T) {
	tbl, row := newTestHost(t, 1)
	disp := &fakeDispatcher{results: []Result{{Err: assertErr{}}}}
	s := New(tbl, disp, Config{RetryBase: time.Minute, RetryMax: time.Hour, MaxConsecutiveErr: 100})

	s.Enqueue(&Job{HostRow: row, JobID: 1})
	require.NoError(t, s.Tick(time.Now()))
	require.NoError(t, s.ReapHost(row))

	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ActiveTransfers())
	assert.Equal(t, uint32(1), h.ErrorCounter)
}

func TestReapAutoPausesAfterThreshold(t *testing.T) {
	tbl, row := newTestHost(t, 1)
	disp := &fakeDispatcher{results: []Result{{Err: assertErr{}}, {Err: assertErr{}}}}
	s := New(tbl, disp, Config{RetryBase: time.Minute, RetryMax: time.Hour, MaxConsecutiveErr: 2})

	for i := 0; i < 2; i++ {
		s.Enqueue(&Job{HostRow: row, JobID: uint32(i)})
		// Tick past the retry backoff the previous failure armed.
		require.NoError(t, s.Tick(time.Now().Add(time.Duration(i)*time.Hour)))
		require.NoError(t, s.ReapHost(row))
	}

	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.NotZero(t, h.HostStatus&hst.AutoPauseQueue)
}

func TestCancelHostInvokesHandleCancel(t *testing.T) {
	tbl, row := newTestHost(t, 1)
	disp := &fakeDispatcher{}
	// Use a handle that never completes so CancelHost has something live to act on.
	hang := &fakeHandle{done: make(chan struct{})}
	s := New(tbl, &stubDispatcher{h: hang}, Config{})
	s.Enqueue(&Job{HostRow: row, JobID: 1})
	require.NoError(t, s.Tick(time.Now()))

	s.CancelHost(row)
	assert.True(t, hang.cancelled)
	_ = disp
}

type stubDispatcher struct{ h Handle }

func (d *stubDispatcher) Dispatch(job *Job, procID uint32, slot int) (Handle, error) {
	return d.h, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "worker failed" }
