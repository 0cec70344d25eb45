// Package dst implements the Directory Status Table (DST, spec.md
// §3.2, §4.2): one mapped slot per source directory, built on the same
// shmtable region-locking primitive as internal/hst.
package dst

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/holger24/AFD-sub006/internal/bus"
	"github.com/holger24/AFD-sub006/internal/shmtable"
)

// DirFlag is the per-directory flag bitset of spec.md §3.2.
type DirFlag uint16

const (
	DirDisabled DirFlag = 1 << iota
	DirStopped
	DirAllDisabledMirror
	DirWarn
	DirError
)

const (
	dirAliasLen  = 32
	hostAliasLen = 32
)

const (
	offDirID             = 0
	offDirAlias          = offDirID + 4
	offHostAlias         = offDirAlias + dirAliasLen
	offNoOfTimeEntries   = offHostAlias + hostAliasLen
	offNextCheckTime     = offNoOfTimeEntries + 4
	offFlags             = offNextCheckTime + 8
	offStartEventHandle  = offFlags + 2
	offEndEventHandle    = offStartEventHandle + 8
	offHasPullAssoc      = offEndEventHandle + 8
	offInConfig          = offHasPullAssoc + 1
	rowSize              = offInConfig + 1
)

// RowSize is the fixed byte size of one DST row.
const RowSize = rowSize

// Region identifiers: DST rows only need one lock region since nothing
// in spec.md §3.2/§4.2 calls for independent sub-slot locking the way
// HST's per-job-slot counters do.
const (
	RegionAll shmtable.Region = 0
	regionsPerRow             = 1
)

// DirSlot is the friendly, decoded view of one DST row.
type DirSlot struct {
	DirID            uint32
	DirAlias         string
	HostAlias        string // associated pull host, empty if none
	NoOfTimeEntries  uint32
	NextCheckTime    time.Time
	Flags            DirFlag
	StartEventHandle time.Time
	EndEventHandle   time.Time
	HasPullAssoc     bool
	InConfig         bool
}

func encode(d *DirSlot, b []byte) {
	binary.LittleEndian.PutUint32(b[offDirID:], d.DirID)
	putString(b, offDirAlias, dirAliasLen, d.DirAlias)
	putString(b, offHostAlias, hostAliasLen, d.HostAlias)
	binary.LittleEndian.PutUint32(b[offNoOfTimeEntries:], d.NoOfTimeEntries)
	putUnixNano(b, offNextCheckTime, d.NextCheckTime)
	binary.LittleEndian.PutUint16(b[offFlags:], uint16(d.Flags))
	putUnixNano(b, offStartEventHandle, d.StartEventHandle)
	putUnixNano(b, offEndEventHandle, d.EndEventHandle)
	if d.HasPullAssoc {
		b[offHasPullAssoc] = 1
	} else {
		b[offHasPullAssoc] = 0
	}
	if d.InConfig {
		b[offInConfig] = 1
	} else {
		b[offInConfig] = 0
	}
}

func decode(b []byte) *DirSlot {
	d := &DirSlot{}
	d.DirID = binary.LittleEndian.Uint32(b[offDirID:])
	d.DirAlias = getString(b, offDirAlias, dirAliasLen)
	d.HostAlias = getString(b, offHostAlias, hostAliasLen)
	d.NoOfTimeEntries = binary.LittleEndian.Uint32(b[offNoOfTimeEntries:])
	d.NextCheckTime = getUnixNano(b, offNextCheckTime)
	d.Flags = DirFlag(binary.LittleEndian.Uint16(b[offFlags:]))
	d.StartEventHandle = getUnixNano(b, offStartEventHandle)
	d.EndEventHandle = getUnixNano(b, offEndEventHandle)
	d.HasPullAssoc = b[offHasPullAssoc] != 0
	d.InConfig = b[offInConfig] != 0
	return d
}

func putString(b []byte, off, n int, s string) {
	for i := range b[off : off+n] {
		b[off+i] = 0
	}
	copy(b[off:off+n], s)
}

func getString(b []byte, off, n int) string {
	raw := b[off : off+n]
	end := n
	for i, c := range raw {
		if c == 0 {
			end = i
			break
		}
	}
	return string(raw[:end])
}

func putUnixNano(b []byte, off int, t time.Time) {
	var v int64
	if !t.IsZero() {
		v = t.UnixNano()
	}
	binary.LittleEndian.PutUint64(b[off:off+8], uint64(v))
}

func getUnixNano(b []byte, off int) time.Time {
	v := int64(binary.LittleEndian.Uint64(b[off : off+8]))
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Table is the attached Directory Status Table.
type Table struct {
	st   *shmtable.Table
	Bus  *bus.DeleteFifo // optional: set to emit DELETE_RETRIEVES_FROM_DIR on Disable/Stop
}

// Attach opens (creating if requested) the DST backing files.
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

// RowCount returns the number of directory slots.
func (t *Table) RowCount() int { return t.st.RowCount() }

// ErrNotFound is returned by Lookup when no row carries dir_id.
var ErrNotFound = fmt.Errorf("dst: directory not found")

// Lookup returns the slot index for dir_id.
func (t *Table) Lookup(dirID uint32) (int, error) {
	for i := 0; i < t.RowCount(); i++ {
		d, err := t.ReadRow(i)
		if err != nil {
			return 0, err
		}
		if d.InConfig && d.DirID == dirID {
			return i, nil
		}
	}
	return 0, ErrNotFound
}

// ReadRow returns a snapshot of row under the read lock.
func (t *Table) ReadRow(row int) (*DirSlot, error) {
	if err := t.st.RLockRegion(row, RegionAll); err != nil {
		return nil, err
	}
	defer t.st.UnlockRegion(row, RegionAll)
	buf := make([]byte, RowSize)
	if err := t.st.ReadRow(row, buf); err != nil {
		return nil, err
	}
	return decode(buf), nil
}

// InitRow installs slot as the full content of row (used by config
// install, analogous to hst.Table.InitRow).
func (t *Table) InitRow(row int, slot *DirSlot) error {
	buf := make([]byte, RowSize)
	encode(slot, buf)
	return t.st.WriteRow(row, buf)
}

func (t *Table) mutate(row int, fn func(d *DirSlot)) (*DirSlot, error) {
	if err := t.st.LockRegion(row, RegionAll); err != nil {
		return nil, err
	}
	defer t.st.UnlockRegion(row, RegionAll)
	buf := make([]byte, RowSize)
	if err := t.st.ReadRow(row, buf); err != nil {
		return nil, err
	}
	d := decode(buf)
	fn(d)
	encode(d, buf)
	if err := t.st.WriteRow(row, buf); err != nil {
		return nil, err
	}
	return d, nil
}

// ForceRescan implements spec.md §3.2's invariant: rescanning is only
// permitted when next_check_time > now in scheduled mode; forcing a
// rescan overwrites next_check_time := now and emits
// FORCE_REMOTE_DIR_CHECK iff next_check_time was actually advanced and
// a host-side pull association exists (spec.md §4.2).
func (t *Table) ForceRescan(row int, now time.Time) (emitted bool, err error) {
	var due bool
	d, err := t.mutate(row, func(d *DirSlot) {
		if d.NextCheckTime.After(now) {
			due = true
			d.NextCheckTime = now
		}
	})
	if err != nil {
		return false, err
	}
	if due && d.HasPullAssoc && t.Bus != nil {
		if err := t.Bus.ForceRemoteDirCheck(d.DirAlias); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Enable clears DIR_DISABLED. Disable sets it and emits
// DELETE_RETRIEVES_FROM_DIR (spec.md §4.2).
func (t *Table) Enable(row int) error {
	_, err := t.mutate(row, func(d *DirSlot) { d.Flags &^= DirDisabled })
	return err
}

func (t *Table) Disable(row int) error {
	d, err := t.mutate(row, func(d *DirSlot) { d.Flags |= DirDisabled })
	if err != nil {
		return err
	}
	return t.emitDeleteRetrieves(d)
}

// Start clears DIR_STOPPED. Stop sets it and emits
// DELETE_RETRIEVES_FROM_DIR.
func (t *Table) Start(row int) error {
	_, err := t.mutate(row, func(d *DirSlot) { d.Flags &^= DirStopped })
	return err
}

func (t *Table) Stop(row int) error {
	d, err := t.mutate(row, func(d *DirSlot) { d.Flags |= DirStopped })
	if err != nil {
		return err
	}
	return t.emitDeleteRetrieves(d)
}

func (t *Table) emitDeleteRetrieves(d *DirSlot) error {
	if t.Bus == nil {
		return nil
	}
	return t.Bus.DeleteRetrievesFromDir(d.DirAlias)
}
