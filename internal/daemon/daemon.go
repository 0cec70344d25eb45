// Package daemon wires the Host Status Table, Directory Status Table,
// Message Bus fifos, File Distributor scheduler, and Protocol Worker
// pool into the single long-running process cmd/afd starts, matching
// spec.md §2's component diagram collapsed onto one address space
// (AMG's own reload/menu logic stays out of scope per §1; see AMG for
// the minimal in-process stand-in this repo uses instead).
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/holger24/AFD-sub006/internal/afdlog"
	"github.com/holger24/AFD-sub006/internal/afdpaths"
	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/counter"
	"github.com/holger24/AFD-sub006/internal/dst"
	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/sched"
	"github.com/holger24/AFD-sub006/internal/worker"
	"github.com/holger24/AFD-sub006/internal/worker/protocol"
)

// Config configures one Daemon instance.
type Config struct {
	Layout  afdpaths.Layout
	HSTRows int
	DSTRows int
	// Create makes the backing files/fifos if they do not already
	// exist; a second instance attaching to the same Layout must leave
	// this false.
	Create bool

	RetryBase         time.Duration
	RetryMax          time.Duration
	MaxConsecutiveErr int
	ShutdownDeadline  time.Duration
	TransferTimeout   time.Duration
	PollInterval      time.Duration
	DefaultPort       int
	MaxAliasLen       int

	// Registry overrides the default protocol variant set; nil selects
	// DefaultRegistry with an insecure SFTP host-key callback, which is
	// fine for the simulated/stub-heavy test deployments this process
	// targets but MUST be overridden with a real callback for anything
	// that talks to a real SFTP endpoint.
	Registry protocol.Registry

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2 * time.Minute
	}
	if c.MaxConsecutiveErr <= 0 {
		c.MaxConsecutiveErr = 5
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = 30 * time.Second
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = 10 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DefaultPort <= 0 {
		c.DefaultPort = 21
	}
	if c.MaxAliasLen <= 0 {
		c.MaxAliasLen = 256
	}
	if c.Registry == nil {
		c.Registry = DefaultRegistry(ssh.InsecureIgnoreHostKey())
	}
	if c.Logger == nil {
		c.Logger = afdlog.New(slog.LevelInfo)
	}
}

// Daemon is one running AFD instance: HST+DST+bus+scheduler+workers,
// plus the fifo plumbing that connects them to the outside world
// through the named pipes afdpaths.Layout resolves.
type Daemon struct {
	cfg Config
	log *slog.Logger

	HST    *hst.Table
	DST    *dst.Table
	Sched  *sched.Scheduler
	Pool   *worker.Pool
	AMG    *AMG
	Router *StaticJobRouter
	// DirRouter resolves job_id -> dir_id for jobs minted on behalf of a
	// pull directory, so DELETE_RETRIEVES_FROM_DIR (spec.md §4.2) can
	// purge them from the scheduler's ready-queue by directory.
	DirRouter *DirRouter

	afdCmdR *bus.CmdReader
	fdCmdR  *bus.FDCmdReader
	fdCmdW  *bus.Fifo
	dcCmdR  *bus.CmdReader
	awCmdR  *bus.CmdReader
	wakeR   *bus.WakeUpFifo
	retryR  *bus.RetryFifo
	delW    *bus.Fifo
	delR    *bus.DeleteReader
	jobR    *bus.JobFifo
	demcdR  *bus.DEMCDFifo
	demcdW  *bus.Fifo
	traceR  *bus.Fifo
	traceW  *bus.Fifo
	dtraceR *bus.Fifo
	dtraceW *bus.Fifo
}

// New creates (if cfg.Create) or attaches every backing file and fifo
// named by cfg.Layout and wires the scheduler/worker pool around them.
func New(cfg Config) (*Daemon, error) {
	cfg.setDefaults()
	d := &Daemon{cfg: cfg, log: afdlog.Component(cfg.Logger, "daemon"), Router: NewStaticJobRouter(), DirRouter: NewDirRouter()}

	if cfg.Create {
		if err := os.MkdirAll(cfg.Layout.FifoDir(), 0o700); err != nil {
			return nil, fmt.Errorf("daemon: mkdir fifo dir: %w", err)
		}
		if err := os.MkdirAll(cfg.Layout.OutgoingSpool(), 0o700); err != nil {
			return nil, fmt.Errorf("daemon: mkdir spool dir: %w", err)
		}
		for _, p := range []string{
			cfg.Layout.AFDCmdFifo(), cfg.Layout.FDCmdFifo(), cfg.Layout.DCCmdFifo(),
			cfg.Layout.AWCmdFifo(), cfg.Layout.FDWakeUpFifo(), cfg.Layout.RetryFDFifo(),
			cfg.Layout.FDDeleteFifo(), cfg.Layout.DelTimeJobFifo(), cfg.Layout.JobFifo(),
			cfg.Layout.DEMCDFifo(), cfg.Layout.TransLogFifo(), cfg.Layout.TransDebugLogFifo(),
		} {
			if err := bus.CreateFifo(p, 0o600); err != nil {
				return nil, fmt.Errorf("daemon: create fifo %s: %w", p, err)
			}
		}
	}

	var err error
	if d.HST, err = hst.Attach(cfg.Layout.HSTData(), cfg.Layout.HSTLock(), cfg.HSTRows, cfg.Create); err != nil {
		return nil, fmt.Errorf("daemon: attach HST: %w", err)
	}
	if d.DST, err = dst.Attach(cfg.Layout.DSTData(), cfg.Layout.DSTLock(), cfg.DSTRows, cfg.Create); err != nil {
		d.HST.Close()
		return nil, fmt.Errorf("daemon: attach DST: %w", err)
	}

	if err := d.openFifos(); err != nil {
		d.HST.Close()
		d.DST.Close()
		return nil, err
	}

	d.DST.Bus = bus.NewDeleteFifo(d.delW, d.fdCmdW)

	source := NewDirJobSource(d.HST, cfg.DefaultPort, cfg.TransferTimeout)
	d.Pool = worker.NewPool(d.HST, cfg.Registry, source, d.traceSink, d.confirmSink)
	d.Sched = sched.New(d.HST, d.Pool, sched.Config{
		RetryBase:         cfg.RetryBase,
		RetryMax:          cfg.RetryMax,
		MaxConsecutiveErr: cfg.MaxConsecutiveErr,
		ShutdownDeadline:  cfg.ShutdownDeadline,
	})
	ctr, err := counter.Open(cfg.Layout.CounterFile())
	if err != nil {
		d.HST.Close()
		d.DST.Close()
		return nil, fmt.Errorf("daemon: open counter file: %w", err)
	}
	d.AMG = NewAMG(d.HST, d.Sched, d.Router, d.DirRouter, ctr, cfg.Layout.OutgoingSpool())

	return d, nil
}

// openFifos opens every named pipe this process needs. Readers that
// this process alone consumes (AFD_CMD_FIFO, DC_CMD_FIFO, AW_CMD_FIFO,
// FD_WAKE_UP_FIFO, RETRY_FD_FIFO, JOB_FIFO) are opened non-blocking so
// an external producer's blocking write-open never waits on this
// process's poll loop to get around to it. Fifos this same process
// both produces and consumes (FD_CMD_FIFO, FD_DELETE_FIFO, DEMCD_FIFO,
// the two trace fifos) get a non-blocking reader opened first so the
// paired writer open (also made here) never blocks on itself.
func (d *Daemon) openFifos() error {
	l := d.cfg.Layout
	maxAlias := d.cfg.MaxAliasLen

	open := func(path string) (*bus.Fifo, error) { return bus.OpenReaderNonBlock(path) }

	afdCmdFifo, err := open(l.AFDCmdFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.AFDCmdFifo(), err)
	}
	d.afdCmdR = bus.NewCmdReader(afdCmdFifo)

	fdCmdReaderFifo, err := open(l.FDCmdFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.FDCmdFifo(), err)
	}
	d.fdCmdR = bus.NewFDCmdReader(fdCmdReaderFifo, maxAlias)
	if d.fdCmdW, err = bus.OpenWriter(l.FDCmdFifo()); err != nil {
		return fmt.Errorf("daemon: open writer %s: %w", l.FDCmdFifo(), err)
	}

	dcCmdFifo, err := open(l.DCCmdFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.DCCmdFifo(), err)
	}
	d.dcCmdR = bus.NewCmdReader(dcCmdFifo)

	awCmdFifo, err := open(l.AWCmdFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.AWCmdFifo(), err)
	}
	d.awCmdR = bus.NewCmdReader(awCmdFifo)

	wakeFifo, err := open(l.FDWakeUpFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.FDWakeUpFifo(), err)
	}
	d.wakeR = bus.NewWakeUpFifo(wakeFifo)

	retryFifo, err := open(l.RetryFDFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.RetryFDFifo(), err)
	}
	d.retryR = bus.NewRetryFifo(retryFifo)

	delReaderFifo, err := open(l.FDDeleteFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.FDDeleteFifo(), err)
	}
	d.delR = bus.NewDeleteReader(delReaderFifo, maxAlias)
	if d.delW, err = bus.OpenWriter(l.FDDeleteFifo()); err != nil {
		return fmt.Errorf("daemon: open writer %s: %w", l.FDDeleteFifo(), err)
	}

	jobFifo, err := open(l.JobFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.JobFifo(), err)
	}
	d.jobR = bus.NewJobFifo(jobFifo)

	demcdReaderFifo, err := open(l.DEMCDFifo())
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.DEMCDFifo(), err)
	}
	d.demcdR = bus.NewDEMCDFifo(demcdReaderFifo)
	if d.demcdW, err = bus.OpenWriter(l.DEMCDFifo()); err != nil {
		return fmt.Errorf("daemon: open writer %s: %w", l.DEMCDFifo(), err)
	}

	if d.traceR, err = open(l.TransLogFifo()); err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.TransLogFifo(), err)
	}
	if d.traceW, err = bus.OpenWriter(l.TransLogFifo()); err != nil {
		return fmt.Errorf("daemon: open writer %s: %w", l.TransLogFifo(), err)
	}
	if d.dtraceR, err = open(l.TransDebugLogFifo()); err != nil {
		return fmt.Errorf("daemon: open %s: %w", l.TransDebugLogFifo(), err)
	}
	if d.dtraceW, err = bus.OpenWriter(l.TransDebugLogFifo()); err != nil {
		return fmt.Errorf("daemon: open writer %s: %w", l.TransDebugLogFifo(), err)
	}

	return nil
}

// traceSink implements worker.TraceSink: every line always goes to
// trans_log, and DEBUG+ additionally mirrors to trans_debug_log_fifo,
// matching spec.md §4.5's debug cascade.
func (d *Daemon) traceSink(line string, level afdlog.DebugLevel) {
	if err := d.traceW.WriteFrame([]byte(line)); err != nil {
		d.log.Warn("trans_log write failed", "error", err)
	}
	if level >= afdlog.Debug {
		if err := d.dtraceW.WriteFrame([]byte(line)); err != nil {
			d.log.Warn("trans_debug_log write failed", "error", err)
		}
	}
}

// confirmSink implements worker.ConfirmSink: emits the DEMCD
// confirmation over the real bus fifo (spec.md §6.3), so anything
// observing DEMCD_FIFO from outside this process sees every record;
// this process does not read them back.
func (d *Daemon) confirmSink(c *bus.Confirmation) {
	frame, err := c.Encode()
	if err != nil {
		d.log.Warn("confirmation encode failed", "error", err)
		return
	}
	if err := d.demcdW.WriteFrame(frame); err != nil {
		d.log.Warn("demcd write failed", "error", err)
	}
}

// Close detaches the tables and closes every fifo handle. Run's
// drain loops must have already stopped (cancel their context first).
func (d *Daemon) Close() error {
	var first error
	note := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	note(d.HST.Close())
	note(d.DST.Close())
	note(d.afdCmdR.Close())
	note(d.fdCmdR.Close())
	note(d.fdCmdW.Close())
	note(d.dcCmdR.Close())
	note(d.awCmdR.Close())
	note(d.wakeR.Close())
	note(d.retryR.Close())
	note(d.delR.Close())
	note(d.delW.Close())
	note(d.jobR.Close())
	note(d.demcdR.Close())
	note(d.demcdW.Close())
	note(d.traceR.Close())
	note(d.traceW.Close())
	note(d.dtraceR.Close())
	note(d.dtraceW.Close())
	return first
}

// Run drives the scheduler's Tick/ReapHost loop and every command/job
// fifo's drain loop until ctx is cancelled, fanning them all into one
// errgroup per spec.md §4.4's picture of FD as a single event loop
// fed by several sources rather than one. A drain loop's own error
// (anything but ctx cancellation) cancels the group and propagates
// out of Wait.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.tickLoop(ctx) })
	g.Go(func() error { return d.drainAFDCmd(ctx) })
	g.Go(func() error { return d.drainFDCmd(ctx) })
	g.Go(func() error { return d.drainDCCmd(ctx) })
	g.Go(func() error { return d.drainAWCmd(ctx) })
	g.Go(func() error { return d.drainRetry(ctx) })
	g.Go(func() error { return d.drainDelete(ctx) })
	g.Go(func() error { return d.drainJobs(ctx) })
	g.Go(func() error { return d.drainWake(ctx) })

	return g.Wait()
}

// isEAGAIN reports whether err is the "no data pending" result of a
// non-blocking fifo read, the expected steady-state outcome of every
// poll iteration below rather than a real failure.
func isEAGAIN(err error) bool {
	return errors.Is(err, syscall.EAGAIN)
}

// tickLoop drives the scheduler's dispatch and reap passes, and edge
// triggers CancelHost the moment StopTransfer is newly observed set on
// a row, matching spec.md §4.4's STOP_TRANSFER cancellation path
// (FD does not poll for this anywhere else; HST rows change under a
// separate writer, here afdcmd via SetStopTransfer-equivalent command
// handling).
func (d *Daemon) tickLoop(ctx context.Context) error {
	stopped := make(map[int]bool, d.HST.RowCount())
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := d.runSchedulingPass(stopped); err != nil {
			return err
		}
	}
}

// runSchedulingPass is one cooperative scheduling iteration: dispatch,
// reap, and edge-triggered STOP_TRANSFER cancellation. It is shared by
// tickLoop's fixed-interval poll and drainWake's FD_WAKE_UP_FIFO nudge
// (spec.md §4.4: the wake-up fifo exists precisely so a host whose
// STOP_TRANSFER flag was just cleared is re-evaluated immediately
// instead of waiting out the rest of the poll interval).
func (d *Daemon) runSchedulingPass(stopped map[int]bool) error {
	now := time.Now()
	if err := d.Sched.Tick(now); err != nil {
		return fmt.Errorf("daemon: scheduler tick: %w", err)
	}

	for row := 0; row < d.HST.RowCount(); row++ {
		if err := d.Sched.ReapHost(row); err != nil {
			return fmt.Errorf("daemon: reap host row %d: %w", row, err)
		}
		h, err := d.HST.ReadRow(row)
		if err != nil {
			continue
		}
		stop := h.HostStatus&hst.StopTransfer != 0
		if stop && !stopped[row] {
			d.Sched.CancelHost(row)
		}
		stopped[row] = stop
	}
	return nil
}

// drainWake handles FD_WAKE_UP_FIFO: an arbitrary byte means some host's
// STOP_TRANSFER flag was just cleared, so the scheduler should be given
// an immediate dispatch pass rather than waiting for tickLoop's next
// tick (spec.md §4.4). It keeps its own stopped-edge map since it runs
// concurrently with tickLoop's.
func (d *Daemon) drainWake(ctx context.Context) error {
	stopped := make(map[int]bool, d.HST.RowCount())
	for {
		if done(ctx) {
			return nil
		}
		if err := d.wakeR.Recv(); err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: fd_wake_up_fifo: %w", err)
		}
		if err := d.runSchedulingPass(stopped); err != nil {
			return err
		}
	}
}

// drainAFDCmd handles AFD_CMD_FIFO: START/STOP FD toggles the
// scheduler directly; START/STOP AMG is logged only, since this
// build's AMG is an in-process stand-in with no background loop of
// its own to start or stop (see AMG's doc comment).
func (d *Daemon) drainAFDCmd(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		op, err := d.afdCmdR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: afd_cmd_fifo: %w", err)
		}
		switch op {
		case bus.OpStartFD:
			d.Sched.Start()
		case bus.OpStopFD:
			d.Sched.Stop()
		case bus.OpStartAMG, bus.OpStopAMG:
			d.log.Debug("amg toggle received", "op", op)
		default:
			d.log.Warn("afd_cmd_fifo: unrecognized opcode", "op", op)
		}
	}
}

// drainFDCmd handles FD_CMD_FIFO: CHECK_FILE_DIR and
// REREAD_LOC_INTERFACE_FILE are logged only (their real work lives in
// the host-config reread path cmd/afd's SIGHUP handler already
// covers); FORCE_REMOTE_DIR_CHECK resolves its directory alias and
// forwards it into the DST's ForceRescan.
func (d *Daemon) drainFDCmd(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		op, alias, err := d.fdCmdR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: fd_cmd_fifo: %w", err)
		}
		switch op {
		case bus.OpCheckFileDir:
			d.log.Debug("check file dir requested")
		case bus.OpRereadLocInterfaceFile:
			d.log.Debug("reread local interface file requested")
		case bus.OpForceRemoteDirCheck:
			row, ok := d.dirRowForAlias(alias)
			if !ok {
				d.log.Warn("force remote dir check: unknown alias", "alias", alias)
				continue
			}
			if _, err := d.DST.ForceRescan(row, time.Now()); err != nil {
				d.log.Warn("force remote dir check failed", "alias", alias, "error", err)
			}
		default:
			d.log.Warn("fd_cmd_fifo: unrecognized opcode", "op", op)
		}
	}
}

// drainDCCmd and drainAWCmd log their requests: the exec-statistics
// and archive-check components those fifos target are out of scope
// beyond the command surface itself (spec.md §1 scopes DC/AW reporting
// out), so this build has nothing further to dispatch them to.
func (d *Daemon) drainDCCmd(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		op, err := d.dcCmdR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: dc_cmd_fifo: %w", err)
		}
		d.log.Debug("dc_cmd_fifo command received", "op", op)
	}
}

func (d *Daemon) drainAWCmd(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		op, err := d.awCmdR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: aw_cmd_fifo: %w", err)
		}
		d.log.Debug("aw_cmd_fifo command received", "op", op)
	}
}

// drainRetry handles RETRY_FD_FIFO: each frame names a host row whose
// backoff should be cleared immediately (spec.md §4.4's RETRY_PERM).
func (d *Daemon) drainRetry(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		row, err := d.retryR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: retry_fd_fifo: %w", err)
		}
		d.Sched.RetryNow(row)
	}
}

// drainDelete handles FD_DELETE_FIFO: DELETE_ALL_JOBS_FROM_HOST
// resolves a host alias and clears that row's ready-queue;
// DELETE_RETRIEVES_FROM_DIR resolves a directory alias to its dir_id
// and purges every queued job minted for that directory, wherever its
// host row happens to be (spec.md §4.2, §8 scenario 5).
func (d *Daemon) drainDelete(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		op, alias, err := d.delR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: fd_delete_fifo: %w", err)
		}
		switch op {
		case bus.OpDeleteAllJobsFromHost:
			row, ok := d.hostRowForAlias(alias)
			if !ok {
				d.log.Warn("delete all jobs: unknown host alias", "alias", alias)
				continue
			}
			if err := d.Sched.HandleCommand(bus.OpDeleteAllJobsFromHost, row); err != nil {
				d.log.Warn("delete all jobs failed", "alias", alias, "error", err)
			}
		case bus.OpDeleteRetrievesFromDir:
			dirID, ok := d.dirIDForAlias(alias)
			if !ok {
				d.log.Warn("delete retrieves from dir: unknown dir alias", "alias", alias)
				continue
			}
			removed := d.Sched.RemoveJobsForDir(dirID)
			d.log.Debug("delete retrieves from dir", "alias", alias, "dir_id", dirID, "removed", removed)
		default:
			d.log.Warn("fd_delete_fifo: unrecognized opcode", "op", op)
		}
	}
}

// drainJobs handles JOB_FIFO: every frame is a job minted by whatever
// submitted it (the AMG stub here), resolved back to its host row via
// Router and handed straight to the scheduler.
func (d *Daemon) drainJobs(ctx context.Context) error {
	for {
		if done(ctx) {
			return nil
		}
		msg, err := d.jobR.Recv()
		if err != nil {
			if isEAGAIN(err) {
				d.sleep(ctx)
				continue
			}
			return fmt.Errorf("daemon: job_fifo: %w", err)
		}
		row, ok := d.Router.HostRowForJob(msg.JobID)
		if !ok {
			d.log.Warn("job_fifo: unrouted job id", "job_id", msg.JobID)
			continue
		}
		dirID, _ := d.DirRouter.DirIDForJob(msg.JobID)
		d.Sched.Enqueue(&sched.Job{
			HostRow:      row,
			JobID:        msg.JobID,
			SplitJobCtr:  msg.SplitJobCtr,
			FilesToSend:  msg.FilesToSend,
			FileSize:     msg.FileSize,
			UniqueNumber: msg.UniqueNumber,
			DirNo:        msg.DirNo,
			DirID:        dirID,
			Priority:     msg.Priority,
			CreationTime: msg.CreationTime,
		})
		d.Router.Forget(msg.JobID)
		d.DirRouter.Forget(msg.JobID)
	}
}

func done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (d *Daemon) sleep(ctx context.Context) {
	t := time.NewTimer(d.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// hostRowForAlias linear-scans HST for the row whose HostAlias
// matches, since FD_DELETE_FIFO frames carry aliases rather than the
// numeric host_id Lookup indexes by.
func (d *Daemon) hostRowForAlias(alias string) (int, bool) {
	for i := 0; i < d.HST.RowCount(); i++ {
		h, err := d.HST.ReadRow(i)
		if err != nil {
			continue
		}
		if h.HostAlias == alias {
			return i, true
		}
	}
	return 0, false
}

// dirRowForAlias is DST's equivalent of hostRowForAlias.
func (d *Daemon) dirRowForAlias(alias string) (int, bool) {
	for i := 0; i < d.DST.RowCount(); i++ {
		dr, err := d.DST.ReadRow(i)
		if err != nil {
			continue
		}
		if dr.DirAlias == alias {
			return i, true
		}
	}
	return 0, false
}

// dirIDForAlias resolves an FD_DELETE_FIFO alias straight to the dir_id
// sched.Job.DirID carries, since DELETE_RETRIEVES_FROM_DIR purges by
// dir_id rather than by row index.
func (d *Daemon) dirIDForAlias(alias string) (uint32, bool) {
	row, ok := d.dirRowForAlias(alias)
	if !ok {
		return 0, false
	}
	dr, err := d.DST.ReadRow(row)
	if err != nil {
		return 0, false
	}
	return dr.DirID, true
}
