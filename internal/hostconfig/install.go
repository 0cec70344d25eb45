package hostconfig

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/holger24/AFD-sub006/internal/hst"
)

// ErrCountMismatch is returned by ReplaceConfigFile when the existing
// on-disk config's entry count disagrees with the live HST's (spec.md
// §6.7 "writers MUST read-parse-verify the file before replacing it;
// if the count of entries differs from the live HST, the write is
// aborted").
var ErrCountMismatch = fmt.Errorf("hostconfig: entry count mismatch against live table")

// Install implements the read path: it parses r and reconciles the
// result into tbl via hst.ReloadFromConfig (which already handles
// added/vanished hosts on its own terms), then snapshots the newly
// installed config as the last-known-good.
func Install(r io.Reader, tbl *hst.Table, store *SnapshotStore) ([]hst.ConfigHost, error) {
	hosts, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("hostconfig: parse: %w", err)
	}
	if err := tbl.ReloadFromConfig(hosts); err != nil {
		return nil, fmt.Errorf("hostconfig: install: %w", err)
	}
	if store != nil {
		if err := store.Save(hosts); err != nil {
			return nil, fmt.Errorf("hostconfig: snapshot after install: %w", err)
		}
	}
	return hosts, nil
}

// ReplaceConfigFile implements the §6.7 write path: before
// overwriting the authoritative file at path with newHosts, it reads
// and parses whatever is already there and checks its entry count
// against tbl's currently active host count. If they disagree the
// write is aborted (the file on disk is left untouched) and
// ErrCountMismatch is returned, since a diverged on-disk file most
// likely means something upstream of this writer already corrupted
// or partially wrote it.
func ReplaceConfigFile(path string, newHosts []hst.ConfigHost, tbl *hst.Table) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("hostconfig: read existing %s: %w", path, err)
		}
		existing = nil // no file yet, nothing to verify against
	}

	if existing != nil {
		current, err := Parse(bytes.NewReader(existing))
		if err != nil {
			return fmt.Errorf("hostconfig: parse existing %s: %w", path, err)
		}
		active, err := tbl.ActiveHostCount()
		if err != nil {
			return fmt.Errorf("hostconfig: read active host count: %w", err)
		}
		if len(current) != active {
			return fmt.Errorf("%w: on-disk file has %d entries, live table has %d", ErrCountMismatch, len(current), active)
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("hostconfig: create %s: %w", tmp, err)
	}
	if err := Write(f, newHosts); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("hostconfig: write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("hostconfig: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("hostconfig: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
