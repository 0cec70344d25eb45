package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/holger24/AFD-sub006/internal/counter"
	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/resend"
	"github.com/holger24/AFD-sub006/internal/sched"
)

// AMG is a small in-process stand-in for the Automatic Message
// Generator spec.md §1 places out of scope beyond the interfaces it
// drives: it allocates a job_id from the Unique Counter Service, lays
// out a §6.5 staging directory, and enqueues the job with the File
// Distributor, exactly the three things a job producer must do for the
// rest of the pipeline to run. It never reads a real message template
// file or product-distribution rule set.
type AMG struct {
	hst       *hst.Table
	sched     *sched.Scheduler
	router    *StaticJobRouter
	dirRouter *DirRouter
	ctr       counter.Allocator
	spoolDir  string
}

// NewAMG returns a job generator bound to table/scheduler/router,
// allocating job/unique numbers from ctr and staging files under
// spoolDir.
func NewAMG(table *hst.Table, scheduler *sched.Scheduler, router *StaticJobRouter, dirRouter *DirRouter, ctr counter.Allocator, spoolDir string) *AMG {
	return &AMG{hst: table, sched: scheduler, router: router, dirRouter: dirRouter, ctr: ctr, spoolDir: spoolDir}
}

// SubmitJob stages files (name -> content) for hostID at priority and
// enqueues the resulting job with the scheduler. It returns the staged
// job for callers that want to inspect it (tests, afdcmd's
// none-existent-yet manual-submit path). The job carries no directory
// association; see SubmitRetrieveJob for pull-directory jobs.
func (a *AMG) SubmitJob(hostID uint32, priority byte, files map[string][]byte) (*sched.Job, error) {
	return a.submitJob(hostID, 0, priority, files)
}

// SubmitRetrieveJob is SubmitJob for a job pulled in on behalf of a DST
// pull directory: the minted job_id is registered with dirRouter so
// DELETE_RETRIEVES_FROM_DIR (spec.md §4.2) can later find and purge it
// from the ready-queue by dir_id, and the returned job's DirID is set
// the same way for dispatch paths that enqueue directly in-process.
func (a *AMG) SubmitRetrieveJob(hostID, dirID uint32, priority byte, files map[string][]byte) (*sched.Job, error) {
	return a.submitJob(hostID, dirID, priority, files)
}

func (a *AMG) submitJob(hostID, dirID uint32, priority byte, files map[string][]byte) (*sched.Job, error) {
	row, err := a.hst.Lookup(hostID)
	if err != nil {
		return nil, fmt.Errorf("daemon: amg: %w", err)
	}

	n, err := a.ctr.Next(1)
	if err != nil {
		return nil, fmt.Errorf("daemon: amg: allocate job id: %w", err)
	}
	jobID := n
	uniqueNumber := n
	dirNo := uint16(n & 0xffff)
	now := time.Now()

	name := resend.StagingDirName(priority, now.Unix(), jobID, 0, uniqueNumber, dirNo)
	dir, err := resend.MakeStagingDir(a.spoolDir, name)
	if err != nil {
		return nil, fmt.Errorf("daemon: amg: %w", err)
	}
	for filename, content := range files {
		if err := os.WriteFile(filepath.Join(dir, filename), content, 0o644); err != nil {
			return nil, fmt.Errorf("daemon: amg: stage %s: %w", filename, err)
		}
	}

	job := &sched.Job{
		HostRow:      row,
		JobID:        jobID,
		FilesToSend:  uint32(len(files)),
		UniqueNumber: uniqueNumber,
		DirNo:        dirNo,
		DirID:        dirID,
		Priority:     priority,
		CreationTime: now,
		StagingDir:   dir,
	}
	a.router.Register(jobID, row)
	if dirID != 0 {
		a.dirRouter.Register(jobID, dirID)
	}
	a.sched.Enqueue(job)
	return job, nil
}
