// Package shmtable implements the shared, memory-mapped row table that
// backs the Host Status Table and Directory Status Table: a fixed-size
// array of fixed-size rows, mapped into multiple cooperating processes,
// with byte-range advisory locks keyed by (row, region) so distinct
// regions of the same row never exclude each other's writers.
//
// Callers never see a raw pointer into the mapping: Table hands out
// copies via ReadRow and accepts copies via WriteRow, each wrapped by
// the matching region lock.
package shmtable

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// Region identifies a lockable sub-slot of a row. Callers define their
// own region numbering (e.g. HS, TFC, JOB0, JOB1, ...); shmtable only
// needs a small dense integer per row.
type Region int

// Table is a fixed-layout array of rowSize-byte rows, shared across
// processes via mmap, with one lock file holding regionsPerRow
// byte-range locks per row.
type Table struct {
	dataPath      string
	lockPath      string
	dataFile      *os.File
	lockFile      *os.File
	mm            mmap.MMap
	rowSize       int
	rowCount      int
	regionsPerRow int
}

// ErrIncompatibleVersion is returned by Open when an existing data
// file's size differs from RowSize*RowCount; the file carries no
// header magic or version field.
var ErrIncompatibleVersion = fmt.Errorf("shmtable: incompatible version")

// ErrNotInitialized is returned by Open when the backing file does
// not exist, or is empty, and creation was not requested.
var ErrNotInitialized = fmt.Errorf("shmtable: not initialized")

// Options configures Open.
type Options struct {
	RowSize       int
	RowCount      int
	RegionsPerRow int
	Create        bool
}

// Open creates (if opt.Create) or attaches to the data and lock files
// at dataPath/lockPath and maps the data file into memory.
func Open(dataPath, lockPath string, opt Options) (*Table, error) {
	if opt.RowSize <= 0 || opt.RowCount <= 0 || opt.RegionsPerRow <= 0 {
		return nil, fmt.Errorf("shmtable: invalid dimensions")
	}
	flag := os.O_RDWR
	if opt.Create {
		flag |= os.O_CREATE
	}
	dataFile, err := os.OpenFile(dataPath, flag, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("shmtable: open data file: %w", err)
	}
	size := int64(opt.RowSize) * int64(opt.RowCount)
	fi, err := dataFile.Stat()
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("shmtable: stat data file: %w", err)
	}
	if fi.Size() == 0 {
		if !opt.Create {
			dataFile.Close()
			return nil, ErrNotInitialized
		}
		if err := dataFile.Truncate(size); err != nil {
			dataFile.Close()
			return nil, fmt.Errorf("shmtable: truncate data file: %w", err)
		}
	} else if fi.Size() != size {
		dataFile.Close()
		return nil, ErrIncompatibleVersion
	}

	lockFile, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("shmtable: open lock file: %w", err)
	}
	lockSize := int64(opt.RowCount) * int64(opt.RegionsPerRow)
	if lfi, err := lockFile.Stat(); err == nil && lfi.Size() < lockSize {
		_ = lockFile.Truncate(lockSize)
	}

	mm, err := mmap.Map(dataFile, mmap.RDWR, 0)
	if err != nil {
		dataFile.Close()
		lockFile.Close()
		return nil, fmt.Errorf("shmtable: mmap: %w", err)
	}

	return &Table{
		dataPath:      dataPath,
		lockPath:      lockPath,
		dataFile:      dataFile,
		lockFile:      lockFile,
		mm:            mm,
		rowSize:       opt.RowSize,
		rowCount:      opt.RowCount,
		regionsPerRow: opt.RegionsPerRow,
	}, nil
}

// Close unmaps and closes the underlying files.
func (t *Table) Close() error {
	err := t.mm.Unmap()
	if cerr := t.dataFile.Close(); err == nil {
		err = cerr
	}
	if cerr := t.lockFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// RowCount returns the number of rows in the table.
func (t *Table) RowCount() int { return t.rowCount }

// RowSize returns the byte size of one row.
func (t *Table) RowSize() int { return t.rowSize }

func (t *Table) checkRow(row int) error {
	if row < 0 || row >= t.rowCount {
		return fmt.Errorf("shmtable: row %d out of range [0,%d)", row, t.rowCount)
	}
	return nil
}

// ReadRow copies row's bytes into dst, which must be at least RowSize
// long. Callers must hold at least one region lock for row that covers
// the fields they read.
func (t *Table) ReadRow(row int, dst []byte) error {
	if err := t.checkRow(row); err != nil {
		return err
	}
	if len(dst) < t.rowSize {
		return fmt.Errorf("shmtable: dst too small")
	}
	off := row * t.rowSize
	copy(dst, t.mm[off:off+t.rowSize])
	return nil
}

// WriteRow copies src into row's bytes. Callers must hold the
// appropriate region lock(s) in Lock mode before calling.
func (t *Table) WriteRow(row int, src []byte) error {
	if err := t.checkRow(row); err != nil {
		return err
	}
	if len(src) < t.rowSize {
		return fmt.Errorf("shmtable: src too small")
	}
	off := row * t.rowSize
	copy(t.mm[off:off+t.rowSize], src[:t.rowSize])
	return nil
}

// Sync flushes the mapping to the backing file. Callers that need
// cross-process visibility guarantees beyond what the OS already
// provides for a shared mapping can call this after a batch of writes.
func (t *Table) Sync() error {
	return t.mm.Flush()
}

func (t *Table) lockOffset(row int, region Region) (int64, error) {
	if err := t.checkRow(row); err != nil {
		return 0, err
	}
	if int(region) < 0 || int(region) >= t.regionsPerRow {
		return 0, fmt.Errorf("shmtable: region %d out of range [0,%d)", region, t.regionsPerRow)
	}
	return int64(row)*int64(t.regionsPerRow) + int64(region), nil
}

// LockRegion takes an exclusive, blocking byte-range lock on (row,
// region). The offset arithmetic mapping (row, region) onto a byte
// range is this method's concern alone; callers only ever name a row
// index and a region.
func (t *Table) LockRegion(row int, region Region) error {
	off, err := t.lockOffset(row, region)
	if err != nil {
		return err
	}
	lk := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: off, Len: 1}
	return unix.FcntlFlock(t.lockFile.Fd(), unix.F_SETLKW, &lk)
}

// RLockRegion takes a shared, blocking byte-range lock on (row, region).
func (t *Table) RLockRegion(row int, region Region) error {
	off, err := t.lockOffset(row, region)
	if err != nil {
		return err
	}
	lk := unix.Flock_t{Type: unix.F_RDLCK, Whence: 0, Start: off, Len: 1}
	return unix.FcntlFlock(t.lockFile.Fd(), unix.F_SETLKW, &lk)
}

// UnlockRegion releases whatever lock this process holds on (row, region).
func (t *Table) UnlockRegion(row int, region Region) error {
	off, err := t.lockOffset(row, region)
	if err != nil {
		return err
	}
	lk := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: off, Len: 1}
	return unix.FcntlFlock(t.lockFile.Fd(), unix.F_SETLK, &lk)
}
