package daemon

import "sync"

// JobRouter resolves an incoming bus.JobMessage's job_id to the HST row
// it belongs to. The wire layout of §6.2 carries no host identity field
// (only job_id), so something upstream of the bus has to remember which
// host each job_id was minted for; this is that memory.
type JobRouter interface {
	HostRowForJob(jobID uint32) (int, bool)
	// Forget drops jobID once its job has been dispatched or discarded,
	// so the router does not grow without bound.
	Forget(jobID uint32)
}

// StaticJobRouter is a JobRouter backed by a plain map, populated by
// whatever submits jobs (the in-process AMG stub, or a future real
// AMG) at the moment it mints a job_id.
type StaticJobRouter struct {
	mu sync.Mutex
	m  map[uint32]int
}

// NewStaticJobRouter returns an empty router.
func NewStaticJobRouter() *StaticJobRouter {
	return &StaticJobRouter{m: make(map[uint32]int)}
}

// Register records that jobID belongs to hostRow.
func (r *StaticJobRouter) Register(jobID uint32, hostRow int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[jobID] = hostRow
}

// HostRowForJob implements JobRouter.
func (r *StaticJobRouter) HostRowForJob(jobID uint32) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.m[jobID]
	return row, ok
}

// Forget implements JobRouter.
func (r *StaticJobRouter) Forget(jobID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, jobID)
}

// DirRouter resolves a job_id to the DST dir_id it was minted for, for
// jobs that originated from a pull/retrieve directory rather than a
// plain push submission. It exists for the same reason StaticJobRouter
// does: the job_id is the only thing both the wire job message (§6.2)
// and sched.Job reliably carry, so any side information the bus frame
// itself has no field for — here dir_id, for DELETE_RETRIEVES_FROM_DIR
// (§4.2) — has to be looked up out of band by whoever mints the job.
type DirRouter struct {
	mu sync.Mutex
	m  map[uint32]uint32
}

// NewDirRouter returns an empty router.
func NewDirRouter() *DirRouter {
	return &DirRouter{m: make(map[uint32]uint32)}
}

// Register records that jobID was minted for dirID.
func (r *DirRouter) Register(jobID, dirID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[jobID] = dirID
}

// DirIDForJob returns the dir_id jobID was minted for, if any.
func (r *DirRouter) DirIDForJob(jobID uint32) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dirID, ok := r.m[jobID]
	return dirID, ok
}

// Forget drops jobID once its job has been dispatched or discarded.
func (r *DirRouter) Forget(jobID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, jobID)
}
