// Package afdpaths is the canonical on-disk layout one AFD instance
// uses for its shared tables, bus fifos, and supporting files, so
// cmd/afd and cmd/afdcmd agree on where to find them without either
// hard-coding the other's internals.
package afdpaths

import "path/filepath"

// Layout resolves every path a running AFD instance needs from a
// single base directory, mirroring how the teacher's fs/config
// resolves a single config root into many file paths.
type Layout struct {
	Base string
}

// New returns a Layout rooted at base.
func New(base string) Layout { return Layout{Base: base} }

func (l Layout) join(elem ...string) string {
	return filepath.Join(append([]string{l.Base}, elem...)...)
}

// HSTData / HSTLock are the Host Status Table's mmap-backed data and
// lock files.
func (l Layout) HSTData() string { return l.join("hst.dat") }
func (l Layout) HSTLock() string { return l.join("hst.lck") }

// DSTData / DSTLock are the Directory Status Table's files.
func (l Layout) DSTData() string { return l.join("dst.dat") }
func (l Layout) DSTLock() string { return l.join("dst.lck") }

// HostConfigFile is the authoritative §6.7 host-config text file.
func (l Layout) HostConfigFile() string { return l.join("host.cfg") }

// SnapshotDB is the bbolt-backed last-known-good config snapshot.
func (l Layout) SnapshotDB() string { return l.join("host_config_snapshot.db") }

// CounterFile is the §4.7 unique-counter file.
func (l Layout) CounterFile() string { return l.join("afd_ctr") }

// OutgoingSpool is the root directory staging directories are created
// under (spec.md §3.4).
func (l Layout) OutgoingSpool() string { return l.join("outgoing") }

// ArchiveDir is the default root resend selections resolve archived
// files under, when a log entry's own ArchiveDir is relative.
func (l Layout) ArchiveDir() string { return l.join("archive") }

// Fifo paths, one named pipe per §6.1 message class.
func (l Layout) AFDCmdFifo() string       { return l.join("fifo", "afd_cmd_fifo") }
func (l Layout) FDCmdFifo() string        { return l.join("fifo", "fd_cmd_fifo") }
func (l Layout) DCCmdFifo() string        { return l.join("fifo", "dc_cmd_fifo") }
func (l Layout) AWCmdFifo() string        { return l.join("fifo", "aw_cmd_fifo") }
func (l Layout) FDWakeUpFifo() string     { return l.join("fifo", "fd_wake_up_fifo") }
func (l Layout) RetryFDFifo() string      { return l.join("fifo", "retry_fd_fifo") }
func (l Layout) FDDeleteFifo() string     { return l.join("fifo", "fd_delete_fifo") }
func (l Layout) DelTimeJobFifo() string   { return l.join("fifo", "del_time_job_fifo") }
func (l Layout) JobFifo() string          { return l.join("fifo", "job_fifo") }
func (l Layout) DEMCDFifo() string        { return l.join("fifo", "demcd_fifo") }
func (l Layout) TransLogFifo() string     { return l.join("fifo", "trans_log_fifo") }
func (l Layout) TransDebugLogFifo() string { return l.join("fifo", "trans_debug_log_fifo") }

// FifoDir is the directory all named pipes live under.
func (l Layout) FifoDir() string { return l.join("fifo") }
