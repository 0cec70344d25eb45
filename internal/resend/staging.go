package resend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

func parentOf(path string) string {
	return filepath.Dir(filepath.Clean(path))
}

// StagingDirName builds the §6.5 directory name:
// <priority><creation_time_hex>_<job_id_hex>_<split_job_counter_hex>_<unique_number_hex>/<dir_no_hex>/
func StagingDirName(priority byte, creationTimeUnix int64, jobID, splitJobCtr, uniqueNumber uint32, dirNo uint16) string {
	return fmt.Sprintf("%c%x_%x_%x_%x/%x/", priority, creationTimeUnix, jobID, splitJobCtr, uniqueNumber, dirNo)
}

// MakeStagingDir creates base/name, and on a collision (B1: two
// allocations landing on the same counter value, e.g. after a
// wrap-around) appends a UUID tie-breaker suffix so the batch never
// silently overwrites another job's staging directory.
func MakeStagingDir(base, name string) (string, error) {
	full := base + "/" + name
	if err := os.MkdirAll(parentOf(full), 0o755); err != nil {
		return "", fmt.Errorf("resend: mkdir parent of %s: %w", full, err)
	}
	err := os.Mkdir(full, 0o755)
	if err == nil {
		return full, nil
	}
	if !os.IsExist(err) {
		return "", fmt.Errorf("resend: mkdir %s: %w", full, err)
	}
	// The exact target already exists as a non-fresh directory, most
	// likely a counter collision; disambiguate with a UUID suffix
	// rather than reusing (and possibly corrupting) someone else's
	// staging directory.
	tie := base + "/" + name[:len(name)-1] + "-" + uuid.NewString() + "/"
	if mkErr := os.MkdirAll(tie, 0o755); mkErr != nil {
		return "", fmt.Errorf("resend: mkdir tie-break %s: %w", tie, mkErr)
	}
	return tie, nil
}
