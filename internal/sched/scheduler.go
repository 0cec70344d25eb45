package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/retry"
)

// Handle is what Dispatch returns for one live worker: a way to
// cancel it (STOP_TRANSFER -> SIGINT, spec.md §4.4) and to learn its
// outcome once it terminates.
type Handle interface {
	// Cancel requests an orderly teardown (SIGINT semantics).
	Cancel()
	// Done returns a channel closed when the worker has terminated.
	Done() <-chan struct{}
	// Result returns the terminal outcome; valid only after Done closes.
	Result() Result
}

// Result is a dispatched worker's terminal report.
type Result struct {
	FilesDone int64
	BytesDone int64
	Err       error // nil on success
	TimedOut  bool
	Cancelled bool
}

// Dispatcher hands a Job to a Protocol Worker. internal/worker
// implements this; sched never imports internal/worker directly so
// the scheduling loop stays free of protocol concerns. slot is the
// HST job-slot index AcquireJobSlot already claimed for this job, so
// the dispatched worker reports progress into the right slot instead
// of racing other concurrent jobs on the same host.
type Dispatcher interface {
	Dispatch(job *Job, procID uint32, slot int) (Handle, error)
}

// hostState is the scheduler's private bookkeeping for one HST row,
// layered on top of the table's own counters.
type hostState struct {
	queue     *HostQueue
	backoff   *retry.Backoff
	retryAt   time.Time // zero means "not waiting"
	running   map[int]Handle // job slot index -> live handle
	errStreak int
}

// Config bounds the scheduler's behavior per spec.md §4.4.
type Config struct {
	RetryBase         time.Duration
	RetryMax          time.Duration
	MaxConsecutiveErr int // consecutive errors before AUTO_PAUSE_QUEUE
	ShutdownDeadline  time.Duration
}

// Scheduler is the File Distributor's in-process state: the
// ready-queue plus per-host dispatch bookkeeping. Safe for concurrent
// use; Tick is meant to be driven from a single goroutine's
// cooperative loop per spec.md §4.4.
type Scheduler struct {
	mu    sync.Mutex
	hst   *hst.Table
	disp  Dispatcher
	cfg   Config
	hosts map[int]*hostState

	stopping bool
}

// New returns a Scheduler bound to table and dispatcher.
func New(table *hst.Table, disp Dispatcher, cfg Config) *Scheduler {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 2 * time.Minute
	}
	if cfg.MaxConsecutiveErr <= 0 {
		cfg.MaxConsecutiveErr = 5
	}
	return &Scheduler{
		hst:   table,
		disp:  disp,
		cfg:   cfg,
		hosts: make(map[int]*hostState),
	}
}

func (s *Scheduler) state(row int) *hostState {
	hs, ok := s.hosts[row]
	if !ok {
		hs = &hostState{
			queue:   NewHostQueue(),
			backoff: retry.New(s.cfg.RetryBase, s.cfg.RetryMax),
			running: make(map[int]Handle),
		}
		s.hosts[row] = hs
	}
	return hs
}

// Enqueue adds a job to its host's ready-queue.
func (s *Scheduler) Enqueue(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(j.HostRow).queue.Push(j)
}

// Stop marks the scheduler as draining: no further dispatch occurs,
// matching spec.md §4.4's graceful-shutdown "stops accepting new
// jobs".
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
}

// Start clears the draining flag (spec.md §4.4: "On START it
// reinitializes").
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = false
}

// Draining reports whether Stop has been called without a
// matching Start.
func (s *Scheduler) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// ActiveWorkerCount returns the number of in-flight workers across all
// hosts, used by the caller to implement the shutdown deadline wait.
func (s *Scheduler) ActiveWorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, hs := range s.hosts {
		n += len(hs.running)
	}
	return n
}

// freeSlots computes spec.md §4.4 step 2: allowed_transfers minus
// active_transfers, forced to zero by any blocking flag.
func freeSlots(h *hst.HostSlot) int {
	if h.SpecialFlag&hst.HostDisabled != 0 {
		return 0
	}
	if h.HostStatus&(hst.PauseQueue|hst.StopTransfer|hst.AutoPauseQueue) != 0 {
		return 0
	}
	free := int(h.AllowedTransfers) - h.ActiveTransfers()
	if free < 0 {
		free = 0
	}
	return free
}

// Tick runs one cooperative scheduling iteration (spec.md §4.4 steps
// 2-3): for every host with queued jobs and free slots, dispatch as
// many jobs as fit. Command-fifo draining (step 1) and worker reaping
// (step 4) are separate methods the caller interleaves with Tick so
// each concern stays independently testable.
func (s *Scheduler) Tick(now time.Time) error {
	s.mu.Lock()
	stopping := s.stopping
	rows := make([]int, 0, len(s.hosts))
	for row := range s.hosts {
		rows = append(rows, row)
	}
	s.mu.Unlock()

	if stopping {
		return nil
	}

	for _, row := range rows {
		if err := s.dispatchHost(row, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) dispatchHost(row int, now time.Time) error {
	s.mu.Lock()
	hs := s.state(row)
	if !hs.retryAt.IsZero() && now.Before(hs.retryAt) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	h, err := s.hst.ReadRow(row)
	if err != nil {
		return fmt.Errorf("sched: read host row %d: %w", row, err)
	}
	free := freeSlots(h)
	if free == 0 {
		return nil
	}

	for i := 0; i < free; i++ {
		s.mu.Lock()
		job := hs.queue.Pop()
		s.mu.Unlock()
		if job == nil {
			break
		}
		if err := s.dispatchJob(row, h, job); err != nil {
			return err
		}
	}
	return nil
}

// pendingProcID is the placeholder written into a job slot's proc_id
// the instant a worker is handed the job, before the real OS process
// id (if any) is known; spec.md §4.4 step 3 calls this out by name.
const pendingProcID = 0xffffffff

func (s *Scheduler) dispatchJob(row int, h *hst.HostSlot, job *Job) error {
	slotIdx, ok := firstFreeSlot(h)
	if !ok {
		// Raced with another dispatch loop; requeue and retry next Tick.
		s.mu.Lock()
		s.state(row).queue.Push(job)
		s.mu.Unlock()
		return nil
	}
	if err := s.hst.AcquireJobSlot(row, slotIdx, pendingProcID); err != nil {
		s.mu.Lock()
		s.state(row).queue.Push(job)
		s.mu.Unlock()
		return nil
	}
	// Mark the slot taken in the caller's snapshot so the next job of
	// the same pass picks a different slot.
	h.Jobs[slotIdx].ProcID = pendingProcID

	handle, err := s.disp.Dispatch(job, pendingProcID, slotIdx)
	if err != nil {
		s.hst.ReleaseJobSlot(row, slotIdx)
		return fmt.Errorf("sched: dispatch job %d: %w", job.JobID, err)
	}

	s.mu.Lock()
	s.state(row).running[slotIdx] = handle
	s.mu.Unlock()
	return nil
}

func firstFreeSlot(h *hst.HostSlot) (int, bool) {
	for i := 0; i < int(h.AllowedTransfers) && i < hst.MaxNoParallelJobs; i++ {
		if h.Jobs[i].ProcID == 0 {
			return i, true
		}
	}
	return 0, false
}

// ReapHost checks every running worker for host row and, for those
// that have terminated, releases the job slot, adjusts HST counters,
// and applies retry/backoff or AUTO_PAUSE_QUEUE on error (spec.md
// §4.4 step 4).
func (s *Scheduler) ReapHost(row int) error {
	s.mu.Lock()
	hs := s.state(row)
	done := make([]int, 0)
	for slot, handle := range hs.running {
		select {
		case <-handle.Done():
			done = append(done, slot)
		default:
		}
	}
	s.mu.Unlock()

	for _, slot := range done {
		if err := s.reapSlot(row, slot); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) reapSlot(row, slot int) error {
	s.mu.Lock()
	hs := s.state(row)
	handle := hs.running[slot]
	delete(hs.running, slot)
	s.mu.Unlock()

	res := handle.Result()
	if err := s.hst.ReleaseJobSlot(row, slot); err != nil {
		return fmt.Errorf("sched: release job slot %d/%d: %w", row, slot, err)
	}
	if err := s.hst.AdjustCounters(row, -res.FilesDone, -res.BytesDone); err != nil {
		return fmt.Errorf("sched: adjust counters %d: %w", row, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Err != nil && !res.Cancelled {
		crossed, err := s.hst.IncrementErrorCounter(row)
		if err != nil {
			return fmt.Errorf("sched: increment error counter %d: %w", row, err)
		}
		hs.errStreak++
		if crossed || hs.errStreak >= s.cfg.MaxConsecutiveErr {
			if err := s.hst.SetFlag(row, hst.AutoPauseQueue); err != nil {
				return err
			}
		}
		hs.retryAt = time.Now().Add(hs.backoff.NextInterval())
	} else {
		hs.errStreak = 0
		hs.backoff.Reset()
		if err := s.hst.ResetErrorCounter(row); err != nil {
			return fmt.Errorf("sched: reset error counter %d: %w", row, err)
		}
	}
	return nil
}

// RemoveJobsForDir drops every queued job minted for dirID, across every
// host's ready-queue (a directory's pull association names a single
// host, but nothing stops a retry or re-association from leaving stale
// entries under another row, so every host is checked). Implements the
// DELETE_RETRIEVES_FROM_DIR side of spec.md §4.2 and the §8 scenario 5
// requirement that "already-queued retrieve jobs for the dir are
// dropped by FD". Returns the number of jobs removed.
func (s *Scheduler) RemoveJobsForDir(dirID uint32) int {
	if dirID == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, hs := range s.hosts {
		removed += hs.queue.RemoveMatching(func(j *Job) bool { return j.DirID == dirID })
	}
	return removed
}

// HandleCommand applies one drained command-fifo opcode to scheduler
// state, matching spec.md §4.4 step 1. row is pre-resolved by the
// caller via hst.Table.Lookup where the opcode needs a target host.
func (s *Scheduler) HandleCommand(op bus.Opcode, row int) error {
	switch op {
	case bus.OpStopFD:
		s.Stop()
	case bus.OpStartFD:
		s.Start()
	case bus.OpDeleteAllJobsFromHost:
		s.mu.Lock()
		s.state(row).queue.RemoveAll()
		s.mu.Unlock()
	default:
		return fmt.Errorf("sched: unhandled opcode %v", op)
	}
	return nil
}

// RetryNow cancels any pending backoff for row and makes it
// immediately dispatch-eligible, matching the RETRY_PERM semantics of
// the retry_fd_fifo (spec.md §4.4).
func (s *Scheduler) RetryNow(row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := s.state(row)
	hs.retryAt = time.Time{}
	hs.backoff.Reset()
}

// CancelHost sends Cancel to every live worker for row, implementing
// the STOP_TRANSFER cancellation path of spec.md §4.4: FD does not
// delete the staging directory here, jobs remain for later.
func (s *Scheduler) CancelHost(row int) {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.state(row).running))
	for _, h := range s.state(row).running {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// QueueLen reports how many jobs are queued for row, for tests and
// operational introspection.
func (s *Scheduler) QueueLen(row int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(row).queue.Len()
}
