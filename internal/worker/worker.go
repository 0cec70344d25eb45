// Package worker implements the Protocol Worker (PW, spec.md §4.5):
// one instance per job, driving a fixed state machine over a
// protocol.Protocol variant, reporting progress into HST, framing the
// trans_log trace stream, and emitting DEMCD confirmations.
package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/holger24/AFD-sub006/internal/afdlog"
	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/sched"
	"github.com/holger24/AFD-sub006/internal/worker/protocol"
)

// State is one node of the §4.5 state machine.
type State int

const (
	Init State = iota
	Connecting
	Connected
	Transferring
	Closing
	Done
	ErrorState
	Timeout
	Cancelled
)

// TraceSink receives every framed trace line a worker produces; wired
// to trans_log and, at Debug+, to trans_debug_log_fifo.
type TraceSink func(line string, level afdlog.DebugLevel)

// ConfirmSink receives a DEMCD confirmation once a job reaches DONE
// and the protocol variant supports delivery confirmation.
type ConfirmSink func(*bus.Confirmation)

// Clock is injected so tests can control time.Now and timers.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures a Worker.
type Options struct {
	Target            protocol.Target
	ProtocolName      string // registry key, e.g. "ftp", "sftp"
	Files             []protocol.File
	Simulate          bool // spec.md §4.5 SIMULATE_SEND_MODE
	DebugLevel        afdlog.DebugLevel
	Hostname          string
	HostID            uint32
	TransferTimeout   time.Duration
	ConfirmationsUsed bool // whether this protocol variant emits DEMCD
	StagingDir        string
	JobID             uint32
}

// Worker runs one job's state machine. It satisfies sched.Handle once
// started via Run (in its own goroutine) and internal/worker.Pool
// satisfies sched.Dispatcher by constructing and starting Workers.
type Worker struct {
	opts  Options
	proto protocol.Protocol
	hst   *hst.Table
	row   int
	slot  int
	trace TraceSink
	conf  ConfirmSink
	clock Clock

	mu        sync.Mutex
	state     State
	cancelled bool
	done      chan struct{}
	result    sched.Result
}

// New constructs a Worker bound to HST row/slot and ready to run.
func New(opts Options, proto protocol.Protocol, table *hst.Table, row, slot int, trace TraceSink, conf ConfirmSink) *Worker {
	return &Worker{
		opts:  opts,
		proto: proto,
		hst:   table,
		row:   row,
		slot:  slot,
		trace: trace,
		conf:  conf,
		clock: realClock{},
		state: Init,
		done:  make(chan struct{}),
	}
}

// Cancel implements sched.Handle: requests an orderly teardown,
// matching spec.md §4.5's "SIGINT from FD transitions to CANCELLED".
func (w *Worker) Cancel() {
	w.mu.Lock()
	w.cancelled = true
	w.mu.Unlock()
}

// Done implements sched.Handle.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Result implements sched.Handle.
func (w *Worker) Result() sched.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *Worker) isCancelled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancelled
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) log(level afdlog.DebugLevel, msg string) {
	if w.trace == nil {
		return
	}
	line := afdlog.TraceLine{
		When:     w.clock.Now(),
		Sign:     '+',
		Hostname: w.opts.Hostname,
		Slot:     w.slot,
		Message:  msg,
		ID:       uint64(w.opts.JobID),
		File:     "worker.go",
	}
	for _, l := range line.FormatLines() {
		w.trace(l, level)
	}
}

// Run drives the full state machine to completion. It blocks; callers
// run it in its own goroutine and observe Done()/Result().
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithTimeout(ctx, w.timeoutOrDefault())
	defer cancel()

	w.setState(Connecting)
	w.updateConnectStatus(hst.Connecting)
	w.log(afdlog.Debug, "connecting")

	if !w.opts.Simulate {
		if err := w.proto.Connect(ctx); err != nil {
			w.teardown()
			w.finish(sched.Result{Err: err}, ErrorState, hst.ErrorStatus)
			return
		}
	}
	w.setState(Connected)
	w.updateConnectStatus(hst.Connected)
	w.log(afdlog.Debug, "connected")

	var filesDone int64
	var bytesDone int64
	for _, f := range w.opts.Files {
		if w.isCancelled() {
			w.teardown()
			w.finish(sched.Result{FilesDone: filesDone, BytesDone: bytesDone, Cancelled: true}, Cancelled, hst.Cancelled)
			return
		}
		select {
		case <-ctx.Done():
			w.teardown()
			w.finish(sched.Result{FilesDone: filesDone, BytesDone: bytesDone, TimedOut: true, Err: ctx.Err()}, Timeout, hst.Timeout)
			return
		default:
		}

		w.setState(Transferring)
		w.updateConnectStatus(hst.Transferring)
		w.log(afdlog.Trace, fmt.Sprintf("sending %s", f.RemoteName))

		var err error
		if w.opts.Simulate {
			bytesDone += f.Size
		} else {
			err = w.proto.Send(ctx, f, func(sent int64) {
				w.hst.UpdateJobProgress(w.row, w.slot, hst.Transferring, sent, uint32(filesDone))
			})
			if err == nil {
				bytesDone += f.Size
			}
		}
		if err != nil {
			w.teardown()
			w.finish(sched.Result{FilesDone: filesDone, BytesDone: bytesDone, Err: err}, ErrorState, hst.ErrorStatus)
			return
		}
		filesDone++
		w.hst.UpdateJobProgress(w.row, w.slot, hst.Transferring, bytesDone, uint32(filesDone))
	}

	w.setState(Closing)
	w.teardown()
	w.setState(Done)
	w.hst.UpdateJobProgress(w.row, w.slot, hst.Done, bytesDone, uint32(filesDone))
	w.log(afdlog.Debug, "transfer done")

	if w.opts.ConfirmationsUsed && w.conf != nil {
		w.conf(&bus.Confirmation{
			FileSize:         bytesDone,
			JobNumber:        w.opts.JobID,
			ConfirmationType: bus.ConfirmDone,
			Hostname:         w.opts.Hostname,
		})
	}
	if w.opts.StagingDir == "" {
		w.finish(sched.Result{FilesDone: filesDone, BytesDone: bytesDone}, Done, hst.Done)
		return
	}
	// Simulate mode and real transfers both remove the staging
	// directory on success (spec.md §4.5: "The staging directory is
	// still removed on success" even under simulate).
	_ = os.RemoveAll(w.opts.StagingDir)
	w.finish(sched.Result{FilesDone: filesDone, BytesDone: bytesDone}, Done, hst.Done)
}

func (w *Worker) teardown() {
	if w.opts.Simulate {
		return
	}
	_ = w.proto.Close()
}

func (w *Worker) timeoutOrDefault() time.Duration {
	if w.opts.TransferTimeout > 0 {
		return w.opts.TransferTimeout
	}
	return 10 * time.Minute
}

func (w *Worker) updateConnectStatus(cs hst.ConnectStatus) {
	w.hst.UpdateJobProgress(w.row, w.slot, cs, 0, 0)
}

func (w *Worker) finish(res sched.Result, state State, cs hst.ConnectStatus) {
	w.setState(state)
	w.mu.Lock()
	w.result = res
	w.mu.Unlock()
	w.updateConnectStatus(cs)
	if res.Err != nil {
		w.log(afdlog.Normal, "error: "+res.Err.Error())
	}
}
