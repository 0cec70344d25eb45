// Package counter implements the Unique Counter Service (spec.md
// §4.7): an exclusive file-locked 32-bit counter on disk that readers
// consume a contiguous range from and advance. Wrap-around is
// permitted; callers compose creation_time+counter+dir_no+split_job_counter
// into the staging directory name (§6.5) to guarantee uniqueness
// within any single creation-time second even across a wrap.
package counter

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Allocator hands out contiguous ranges of uint32 values.
type Allocator interface {
	// Next allocates n consecutive values and returns the first one.
	// The range wraps silently at 2^32.
	Next(n uint32) (uint32, error)
}

// FileAllocator is the on-disk implementation: a single 4-byte counter
// file, advanced under an exclusive `flock` for the duration of each
// allocation (grounded on internal/shmtable's FcntlFlock use, here
// applied to a whole-file lock since there is exactly one counter per
// file rather than per-row regions).
type FileAllocator struct {
	path string
}

// Open attaches to (creating if necessary) the counter file at path.
func Open(path string) (*FileAllocator, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("counter: open %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("counter: stat %s: %w", path, err)
	}
	if st.Size() < 4 {
		if err := f.Truncate(4); err != nil {
			return nil, fmt.Errorf("counter: truncate %s: %w", path, err)
		}
	}
	return &FileAllocator{path: path}, nil
}

// Next implements Allocator. The returned value is the first of n
// consecutive counter values; the on-disk counter is advanced by n
// (wrapping at 2^32) before the lock is released.
func (a *FileAllocator) Next(n uint32) (uint32, error) {
	f, err := os.OpenFile(a.path, os.O_RDWR, 0o600)
	if err != nil {
		return 0, fmt.Errorf("counter: open %s: %w", a.path, err)
	}
	defer f.Close()

	lock := unix.Flock_t{Type: unix.F_WRLCK, Whence: 0, Start: 0, Len: 0}
	if err := unix.FcntlFlock(f.Fd(), unix.F_SETLKW, &lock); err != nil {
		return 0, fmt.Errorf("counter: lock %s: %w", a.path, err)
	}
	defer func() {
		unlock := unix.Flock_t{Type: unix.F_UNLCK, Whence: 0, Start: 0, Len: 0}
		unix.FcntlFlock(f.Fd(), unix.F_SETLK, &unlock)
	}()

	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, fmt.Errorf("counter: read %s: %w", a.path, err)
	}
	cur := binary.LittleEndian.Uint32(buf)
	binary.LittleEndian.PutUint32(buf, cur+n) // wraps silently at 2^32
	if _, err := f.WriteAt(buf, 0); err != nil {
		return 0, fmt.Errorf("counter: write %s: %w", a.path, err)
	}
	return cur, nil
}

// MemAllocator is an in-memory Allocator for tests, grounded on the
// same interface as FileAllocator so callers never branch on which is
// in use.
type MemAllocator struct {
	cur uint32
}

// Next implements Allocator.
func (a *MemAllocator) Next(n uint32) (uint32, error) {
	v := a.cur
	a.cur += n
	return v, nil
}
