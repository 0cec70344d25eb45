// Package hst implements the Host Status Table (HST, spec.md §3.1,
// §4.1): a memory-mapped array of per-host slots, readable by many
// processes and writable one region at a time under a byte-range lock
// owned by internal/shmtable.
package hst

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/holger24/AFD-sub006/internal/shmtable"
)

// HostStatus is the host_status bitset of spec.md §3.1.
type HostStatus uint32

const (
	PauseQueue HostStatus = 1 << iota
	StopTransfer
	AutoPauseQueue
	DangerPauseQueue
	ErrorQueueSet
	HostErrorOffline
	HostErrorOfflineT
	HostErrorOfflineStatic
	HostErrorAcknowledged
	HostErrorAcknowledgedT
	HostWarnTimeReached
	SimulateSendMode
	DoNotDeleteData
	ErrorHostsInGroup
	WarnHostsInGroup
)

// SpecialFlag is the special_flag bitset of spec.md §3.1.
type SpecialFlag uint16

const (
	HostDisabled SpecialFlag = 1 << iota
	HostInDirConfig
)

// DebugMode is the per-host trace verbosity of spec.md §3.1 / §4.5.
type DebugMode uint8

const (
	Normal DebugMode = iota
	Debug
	Trace
	FullTrace
)

// ConnectStatus is the per-job-slot connection state of spec.md §3.1,
// shared with the Protocol Worker state machine in internal/worker.
type ConnectStatus uint8

const (
	Disconnected ConnectStatus = iota
	Connecting
	Connected
	Transferring
	Closing
	Done
	ErrorStatus
	Timeout
	Cancelled
)

// Color is the derived visible status color of spec.md §4.1.
type Color int

const (
	ColorNeutral Color = iota
	ColorDefault
	ColorOffline
	ColorAcknowledged
	ColorNotWorking
	ColorWarning
	ColorActive
	ColorNormal
)

// JobSlot is one element of a host's per-parallel-transfer array
// (spec.md §3.1).
type JobSlot struct {
	ProcID        uint32
	ConnectStatus ConnectStatus
	NoOfFiles     uint32
	NoOfFilesDone uint32
	BytesSend     int64
	LastActivity  time.Time
}

// HostSlot is the friendly, decoded view of one HST row.
type HostSlot struct {
	HostID           uint32
	HostAlias        string
	HostToggleStr    string
	RealHostname     [2]string
	Protocol         uint32
	AllowedTransfers uint8
	Jobs             [MaxNoParallelJobs]JobSlot
	TotalFileCounter uint64
	TotalFileSize    uint64
	ErrorCounter     uint32
	MaxErrors        uint32
	HostStatus       HostStatus
	SpecialFlag      SpecialFlag
	Debug            DebugMode
	TogglePos        int
	HostToggle       byte // 'A' or 'B'
	StartEventHandle time.Time
	EndEventHandle   time.Time
	InConfig         bool
}

// ActiveTransfers returns the number of job slots with a live owning
// worker (spec.md invariant I2/P1).
func (h *HostSlot) ActiveTransfers() int {
	n := 0
	for i := 0; i < int(h.AllowedTransfers) && i < MaxNoParallelJobs; i++ {
		if h.Jobs[i].ProcID != 0 {
			n++
		}
	}
	return n
}

func encode(h *HostSlot, b []byte) {
	binary.LittleEndian.PutUint32(b[offHostID:], h.HostID)
	putString(b, offHostAlias, hostAliasLen, h.HostAlias)
	putString(b, offToggleStr, hostToggleStrLen, h.HostToggleStr)
	putString(b, offRealHostname0, realHostnameLen, h.RealHostname[0])
	putString(b, offRealHostname1, realHostnameLen, h.RealHostname[1])
	binary.LittleEndian.PutUint32(b[offProtocol:], h.Protocol)
	b[offAllowedTransfers] = h.AllowedTransfers
	binary.LittleEndian.PutUint32(b[offHostStatus:], uint32(h.HostStatus))
	binary.LittleEndian.PutUint16(b[offSpecialFlag:], uint16(h.SpecialFlag))
	b[offDebug] = byte(h.Debug)
	b[offTogglePos] = byte(h.TogglePos)
	b[offHostToggle] = h.HostToggle
	putTime64(b, offStartEventHandle, timeToHandle(h.StartEventHandle))
	putTime64(b, offEndEventHandle, timeToHandle(h.EndEventHandle))
	if h.InConfig {
		b[offInConfig] = 1
	} else {
		b[offInConfig] = 0
	}

	binary.LittleEndian.PutUint64(b[offTotalFileCounter:], h.TotalFileCounter)
	binary.LittleEndian.PutUint64(b[offTotalFileSize:], h.TotalFileSize)
	binary.LittleEndian.PutUint32(b[offErrorCounter:], h.ErrorCounter)
	binary.LittleEndian.PutUint32(b[offMaxErrors:], h.MaxErrors)

	for i := 0; i < MaxNoParallelJobs; i++ {
		j := h.Jobs[i]
		base := offJobs + i*jobSlotSize
		binary.LittleEndian.PutUint32(b[base:], j.ProcID)
		b[base+4] = byte(j.ConnectStatus)
		binary.LittleEndian.PutUint32(b[base+5:], j.NoOfFiles)
		binary.LittleEndian.PutUint32(b[base+9:], j.NoOfFilesDone)
		binary.LittleEndian.PutUint64(b[base+13:], uint64(j.BytesSend))
		putTime64(b, base+21, timeToHandle(j.LastActivity))
	}
}

func decode(b []byte) *HostSlot {
	h := &HostSlot{}
	h.HostID = binary.LittleEndian.Uint32(b[offHostID:])
	h.HostAlias = getString(b, offHostAlias, hostAliasLen)
	h.HostToggleStr = getString(b, offToggleStr, hostToggleStrLen)
	h.RealHostname[0] = getString(b, offRealHostname0, realHostnameLen)
	h.RealHostname[1] = getString(b, offRealHostname1, realHostnameLen)
	h.Protocol = binary.LittleEndian.Uint32(b[offProtocol:])
	h.AllowedTransfers = b[offAllowedTransfers]
	h.HostStatus = HostStatus(binary.LittleEndian.Uint32(b[offHostStatus:]))
	h.SpecialFlag = SpecialFlag(binary.LittleEndian.Uint16(b[offSpecialFlag:]))
	h.Debug = DebugMode(b[offDebug])
	h.TogglePos = int(b[offTogglePos])
	h.HostToggle = b[offHostToggle]
	h.StartEventHandle = handleToTime(getTime64(b, offStartEventHandle))
	h.EndEventHandle = handleToTime(getTime64(b, offEndEventHandle))
	h.InConfig = b[offInConfig] != 0

	h.TotalFileCounter = binary.LittleEndian.Uint64(b[offTotalFileCounter:])
	h.TotalFileSize = binary.LittleEndian.Uint64(b[offTotalFileSize:])
	h.ErrorCounter = binary.LittleEndian.Uint32(b[offErrorCounter:])
	h.MaxErrors = binary.LittleEndian.Uint32(b[offMaxErrors:])

	for i := 0; i < MaxNoParallelJobs; i++ {
		base := offJobs + i*jobSlotSize
		var j JobSlot
		j.ProcID = binary.LittleEndian.Uint32(b[base:])
		j.ConnectStatus = ConnectStatus(b[base+4])
		j.NoOfFiles = binary.LittleEndian.Uint32(b[base+5:])
		j.NoOfFilesDone = binary.LittleEndian.Uint32(b[base+9:])
		j.BytesSend = int64(binary.LittleEndian.Uint64(b[base+13:]))
		j.LastActivity = handleToTime(getTime64(b, base+21))
		h.Jobs[i] = j
	}
	return h
}

// timeToHandle/handleToTime represent a zero Time as the zero handle,
// matching spec.md's "zero handle means open on that side" convention
// for event windows (§4.1).
func timeToHandle(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func handleToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Region identifiers for HST rows, matching spec.md §4.1's "distinct
// locks exist for host-status flags (HS), transfer counters (TFC), and
// per-job-slot counters".
const (
	RegionHS  shmtable.Region = 0
	RegionTFC shmtable.Region = 1
)

// RegionJob returns the lock region for job slot i.
func RegionJob(i int) shmtable.Region { return shmtable.Region(2 + i) }

// regionsPerRow is the total distinct lock regions per row: HS, TFC,
// and one per possible job slot.
const regionsPerRow = 2 + MaxNoParallelJobs

func regionSpan(region shmtable.Region) (off, n int) {
	switch {
	case region == RegionHS:
		return 0, hsGroupEnd
	case region == RegionTFC:
		return hsGroupEnd, tfcGroupEnd - hsGroupEnd
	case int(region) >= 2 && int(region) < regionsPerRow:
		i := int(region) - 2
		return offJobs + i*jobSlotSize, jobSlotSize
	}
	return 0, 0
}

// Table is the attached Host Status Table.
type Table struct {
	st          *shmtable.Table
	subscribers []func(Event)
}

// Attach opens (creating if requested) the HST backing files.
func Attach(dataPath, lockPath string, rowCount int, create bool) (*Table, error) {
	st, err := shmtable.Open(dataPath, lockPath, shmtable.Options{
		RowSize:       RowSize,
		RowCount:      rowCount,
		RegionsPerRow: regionsPerRow,
		Create:        create,
	})
	if err != nil {
		return nil, err
	}
	return &Table{st: st}, nil
}

// Close detaches the table.
func (t *Table) Close() error { return t.st.Close() }

// RowCount returns the number of host slots in the table.
func (t *Table) RowCount() int { return t.st.RowCount() }

// ActiveHostCount returns the number of rows currently carrying a
// configured host (InConfig), i.e. the live entry count
// internal/hostconfig's ReplaceConfigFile checks the existing on-disk
// config file against before replacing it.
func (t *Table) ActiveHostCount() (int, error) {
	n := 0
	for i := 0; i < t.RowCount(); i++ {
		h, err := t.readRegion(i, RegionHS)
		if err != nil {
			return 0, err
		}
		if h.InConfig {
			n++
		}
	}
	return n, nil
}

// ErrNotFound is returned by Lookup when no row carries host_id.
var ErrNotFound = fmt.Errorf("hst: host not found")

// Lookup returns the slot index for host_id, scanning under the HS
// region lock of each candidate row. Real deployments keep a
// host_id->index side index; this linear scan keeps the contract
// simple and is what the unit tests exercise directly.
func (t *Table) Lookup(hostID uint32) (int, error) {
	for i := 0; i < t.RowCount(); i++ {
		h, err := t.readRegion(i, RegionHS)
		if err != nil {
			return 0, err
		}
		if h.InConfig && h.HostID == hostID {
			return i, nil
		}
	}
	return 0, ErrNotFound
}

func (t *Table) readRegion(row int, region shmtable.Region) (*HostSlot, error) {
	if err := t.st.RLockRegion(row, region); err != nil {
		return nil, err
	}
	defer t.st.UnlockRegion(row, region)
	buf := make([]byte, RowSize)
	if err := t.st.ReadRow(row, buf); err != nil {
		return nil, err
	}
	return decode(buf), nil
}

// ReadRow returns a full snapshot of row, taking every region's read
// lock in turn. The result is not atomic across regions (each region
// is independently consistent, per spec.md §4.1), which is the
// documented contract. Within this package, readRegion gives a view
// taken under a single region's lock; no such reader is exported.
func (t *Table) ReadRow(row int) (*HostSlot, error) {
	buf := make([]byte, RowSize)
	for r := shmtable.Region(0); int(r) < regionsPerRow; r++ {
		if err := t.st.RLockRegion(row, r); err != nil {
			return nil, err
		}
		off, n := regionSpan(r)
		part := make([]byte, RowSize)
		if err := t.st.ReadRow(row, part); err != nil {
			t.st.UnlockRegion(row, r)
			return nil, err
		}
		copy(buf[off:off+n], part[off:off+n])
		if err := t.st.UnlockRegion(row, r); err != nil {
			return nil, err
		}
	}
	return decode(buf), nil
}

// writeRegion mutates only the bytes belonging to region, read-modify-
// write under the region's exclusive lock so concurrent writers of a
// different region are never excluded.
func (t *Table) writeRegion(row int, region shmtable.Region, mutate func(h *HostSlot)) error {
	if err := t.st.LockRegion(row, region); err != nil {
		return err
	}
	defer t.st.UnlockRegion(row, region)

	buf := make([]byte, RowSize)
	if err := t.st.ReadRow(row, buf); err != nil {
		return err
	}
	h := decode(buf)
	mutate(h)
	full := make([]byte, RowSize)
	encode(h, full)

	off, n := regionSpan(region)
	if err := t.st.ReadRow(row, buf); err != nil {
		return err
	}
	copy(buf[off:off+n], full[off:off+n])
	return t.st.WriteRow(row, buf)
}

// SetFlag sets mask bits of host_status for row under the HS region lock.
func (t *Table) SetFlag(row int, mask HostStatus) error {
	return t.writeRegion(row, RegionHS, func(h *HostSlot) { h.HostStatus |= mask })
}

// ClearFlag clears mask bits of host_status for row.
func (t *Table) ClearFlag(row int, mask HostStatus) error {
	return t.writeRegion(row, RegionHS, func(h *HostSlot) { h.HostStatus &^= mask })
}

// ToggleFlag flips mask bits of host_status for row.
func (t *Table) ToggleFlag(row int, mask HostStatus) error {
	return t.writeRegion(row, RegionHS, func(h *HostSlot) { h.HostStatus ^= mask })
}

// AdjustCounters applies deltaFiles/deltaBytes to total_file_counter/
// total_file_size under the TFC region lock (spec.md §4.1).
func (t *Table) AdjustCounters(row int, deltaFiles int64, deltaBytes int64) error {
	return t.writeRegion(row, RegionTFC, func(h *HostSlot) {
		h.TotalFileCounter = addClamped(h.TotalFileCounter, deltaFiles)
		h.TotalFileSize = addClamped(h.TotalFileSize, deltaBytes)
	})
}

func addClamped(v uint64, delta int64) uint64 {
	if delta >= 0 {
		return v + uint64(delta)
	}
	dec := uint64(-delta)
	if dec > v {
		return 0
	}
	return v - dec
}

// IncrementErrorCounter increments error_counter under the TFC region
// lock and reports whether the host has now crossed max_errors.
func (t *Table) IncrementErrorCounter(row int) (crossed bool, err error) {
	err = t.writeRegion(row, RegionTFC, func(h *HostSlot) {
		h.ErrorCounter++
		crossed = h.ErrorCounter >= h.MaxErrors && h.MaxErrors > 0
	})
	return crossed, err
}

// ResetErrorCounter clears error_counter, e.g. on a successful retry.
func (t *Table) ResetErrorCounter(row int) error {
	return t.writeRegion(row, RegionTFC, func(h *HostSlot) { h.ErrorCounter = 0 })
}

// AcquireJobSlot claims job slot jobIdx for procID under its own JOB
// region lock, enforcing invariant I2 (proc_id != 0 <-> owned).
func (t *Table) AcquireJobSlot(row, jobIdx int, procID uint32) error {
	if procID == 0 {
		return fmt.Errorf("hst: refusing to acquire job slot with proc_id 0")
	}
	var already bool
	err := t.writeRegion(row, RegionJob(jobIdx), func(h *HostSlot) {
		if h.Jobs[jobIdx].ProcID != 0 {
			already = true
			return
		}
		h.Jobs[jobIdx] = JobSlot{ProcID: procID, ConnectStatus: Connecting, LastActivity: time.Now()}
	})
	if err != nil {
		return err
	}
	if already {
		return fmt.Errorf("hst: job slot %d on row %d already owned", jobIdx, row)
	}
	return nil
}

// ReleaseJobSlot clears job slot jobIdx (proc_id := 0), done on every
// terminal state per spec.md §4.5.
func (t *Table) ReleaseJobSlot(row, jobIdx int) error {
	return t.writeRegion(row, RegionJob(jobIdx), func(h *HostSlot) {
		h.Jobs[jobIdx] = JobSlot{}
	})
}

// UpdateJobProgress writes incremental byte/file counters into job
// slot jobIdx (spec.md §4.5, "writes incremental byte/file counters
// into the shared host slot").
func (t *Table) UpdateJobProgress(row, jobIdx int, status ConnectStatus, bytesSend int64, filesDone uint32) error {
	return t.writeRegion(row, RegionJob(jobIdx), func(h *HostSlot) {
		j := &h.Jobs[jobIdx]
		j.ConnectStatus = status
		j.BytesSend = bytesSend
		j.NoOfFilesDone = filesDone
		j.LastActivity = time.Now()
	})
}

// InitRow installs slot as the full content of row, bypassing region
// locking; used only by ReloadFromConfig's install phase, which takes
// no table-wide lock either.
func (t *Table) InitRow(row int, slot *HostSlot) error {
	buf := make([]byte, RowSize)
	encode(slot, buf)
	return t.st.WriteRow(row, buf)
}

// SetDisabled sets or clears HOST_DISABLED under the HS region lock,
// the afdcmd "enable/disable host" operation of spec.md §6.6. Per
// invariant I3 the scheduler's own freeSlots check already refuses new
// workers the instant this bit is set; it does not need a separate
// notification here.
func (t *Table) SetDisabled(row int, disabled bool) error {
	return t.writeRegion(row, RegionHS, func(h *HostSlot) {
		if disabled {
			h.SpecialFlag |= HostDisabled
		} else {
			h.SpecialFlag &^= HostDisabled
		}
	})
}

// SetDebug sets the per-host trace verbosity (spec.md §4.5's
// NORMAL/DEBUG/TRACE/FULL_TRACE cascade), the afdcmd debug/trace/
// full-trace toggle operations of §6.6.
func (t *Table) SetDebug(row int, level DebugMode) error {
	return t.writeRegion(row, RegionHS, func(h *HostSlot) { h.Debug = level })
}

// SwitchToggle flips a host between its 'A' and 'B' real_hostname
// endpoints (spec.md §4.1 "toggle_pos, host_toggle"; the §8 B6
// "host switch" scenario: "invoke switch. Expect: host_toggle=B ...
// subsequent workers connect to secondary").
func (t *Table) SwitchToggle(row int) error {
	return t.writeRegion(row, RegionHS, func(h *HostSlot) {
		if h.HostToggle == 'A' {
			h.HostToggle = 'B'
			h.TogglePos = 1
		} else {
			h.HostToggle = 'A'
			h.TogglePos = 0
		}
	})
}

// SetRealHostname updates real_hostname[pos] (pos is 0 or 1), the
// afdcmd "set real_hostname[pos]" operation of §6.6.
func (t *Table) SetRealHostname(row, pos int, name string) error {
	if pos != 0 && pos != 1 {
		return fmt.Errorf("hst: real_hostname position must be 0 or 1, got %d", pos)
	}
	return t.writeRegion(row, RegionHS, func(h *HostSlot) { h.RealHostname[pos] = name })
}
