// Package sched implements the File Distributor (FD, spec.md §4.4):
// the ready-queue, per-host scheduling loop, worker dispatch, and
// retry/backoff. It owns no protocol logic — that lives in
// internal/worker — and talks to the Host Status Table only through
// internal/hst's row-locked API.
package sched

import (
	"container/heap"
	"time"
)

// Job is one queued unit of work, derived from a bus.JobMessage plus
// the staging directory it references.
type Job struct {
	HostRow      int
	JobID        uint32
	SplitJobCtr  uint32
	FilesToSend  uint32
	FileSize     int64
	UniqueNumber uint32
	DirNo        uint16
	// DirID is the DST dir_id this job was minted for (0 if it has no
	// directory association, e.g. a plain push job). It rides along
	// purely as in-process scheduler bookkeeping, set by whatever mints
	// the job (spec.md §4.2's DELETE_RETRIEVES_FROM_DIR needs a way to
	// find a directory's queued jobs even though neither the wire job
	// message of §6.2 nor a host's ready-queue key carries dir_id).
	DirID        uint32
	Priority     byte // ASCII priority, higher byte value = higher priority
	CreationTime time.Time
	StagingDir   string
}

// jobQueue orders jobs by (priority DESC, creation_time ASC,
// split_job_counter ASC), matching spec.md §4.4 step 3's pop order.
type jobQueue []*Job

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreationTime.Equal(b.CreationTime) {
		return a.CreationTime.Before(b.CreationTime)
	}
	return a.SplitJobCtr < b.SplitJobCtr
}

func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *jobQueue) Push(x any) { *q = append(*q, x.(*Job)) }

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// HostQueue is one host's ready-queue, kept as a heap so pop-order
// matches §4.4 step 3 without a linear scan per dispatch.
type HostQueue struct {
	jobs jobQueue
}

// NewHostQueue returns an empty queue.
func NewHostQueue() *HostQueue {
	hq := &HostQueue{}
	heap.Init(&hq.jobs)
	return hq
}

// Push enqueues a job.
func (hq *HostQueue) Push(j *Job) { heap.Push(&hq.jobs, j) }

// Pop removes and returns the highest-priority job, or nil if empty.
func (hq *HostQueue) Pop() *Job {
	if hq.jobs.Len() == 0 {
		return nil
	}
	return heap.Pop(&hq.jobs).(*Job)
}

// Len reports the number of queued jobs.
func (hq *HostQueue) Len() int { return hq.jobs.Len() }

// RemoveAll drops every queued job, returning them (used by
// DELETE_ALL_JOBS_FROM_HOST).
func (hq *HostQueue) RemoveAll() []*Job {
	out := make([]*Job, 0, hq.jobs.Len())
	for hq.jobs.Len() > 0 {
		out = append(out, heap.Pop(&hq.jobs).(*Job))
	}
	return out
}

// RemoveMatching drops every queued job for which match returns true and
// returns how many were removed, re-heapifying the survivors (used by
// DELETE_RETRIEVES_FROM_DIR, spec.md §4.2, which purges a directory's
// queued jobs rather than a whole host's).
func (hq *HostQueue) RemoveMatching(match func(*Job) bool) int {
	kept := hq.jobs[:0]
	removed := 0
	for _, j := range hq.jobs {
		if match(j) {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	hq.jobs = kept
	heap.Init(&hq.jobs)
	return removed
}
