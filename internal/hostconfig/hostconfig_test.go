package hostconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holger24/AFD-sub006/internal/hst"
)

const sampleConfig = `# host_id alias real_hostnames protocol allowed_transfers max_errors status toggle
1 alpha alpha.example.com, 0 2 10 0x1 1/2
2 beta  beta.example.com,beta-backup.example.com 0 1 5 0 -
`

func TestParseRoundTripsFields(t *testing.T) {
	hosts, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.Len(t, hosts, 2)

	assert.Equal(t, uint32(1), hosts[0].HostID)
	assert.Equal(t, "alpha", hosts[0].HostAlias)
	assert.Equal(t, "alpha.example.com", hosts[0].RealHostname[0])
	assert.Equal(t, uint8(2), hosts[0].AllowedTransfers)
	assert.Equal(t, uint32(10), hosts[0].MaxErrors)
	assert.Equal(t, hst.PauseQueue, hosts[0].HostStatus)
	assert.Equal(t, "1/2", hosts[0].HostToggleStr)

	assert.Equal(t, "beta", hosts[1].HostAlias)
	assert.Equal(t, "beta-backup.example.com", hosts[1].RealHostname[1])
}

func TestParseRejectsShortLine(t *testing.T) {
	_, err := Parse(strings.NewReader("1 alpha\n"))
	assert.Error(t, err)
}

func TestWriteThenParseIsStable(t *testing.T) {
	hosts, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, hosts))

	again, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, hosts, again)
}

func newTestTable(t *testing.T) *hst.Table {
	t.Helper()
	dir := t.TempDir()
	tbl, err := hst.Attach(filepath.Join(dir, "hst.dat"), filepath.Join(dir, "hst.lck"), 4, true)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func TestInstallReconcilesIntoTable(t *testing.T) {
	tbl := newTestTable(t)
	store, err := OpenStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	defer store.Close()

	hosts, err := Install(strings.NewReader(sampleConfig), tbl, store)
	require.NoError(t, err)
	assert.Len(t, hosts, 2)

	row, err := tbl.Lookup(1)
	require.NoError(t, err)
	slot, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, "alpha", slot.HostAlias)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, hosts, saved)
}

func TestSnapshotStoreLoadBeforeSaveReturnsErrNoSnapshot(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestReplaceConfigFileRefusesOnCountMismatch(t *testing.T) {
	tbl := newTestTable(t)
	_, err := Install(strings.NewReader(sampleConfig), tbl, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "hostconfig.txt")
	// Write a stale on-disk file with only one entry, diverged from
	// the live table's two active hosts.
	require.NoError(t, os.WriteFile(path, []byte("1 alpha alpha.example.com, 0 2 10 0 -\n"), 0o644))

	newHosts, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	err = ReplaceConfigFile(path, newHosts, tbl)
	assert.ErrorIs(t, err, ErrCountMismatch)

	unchanged, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(unchanged), "1 alpha")
	assert.NotContains(t, string(unchanged), "2 beta")
}

func TestReplaceConfigFileSucceedsWhenCountsMatch(t *testing.T) {
	tbl := newTestTable(t)
	_, err := Install(strings.NewReader(sampleConfig), tbl, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "hostconfig.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	newHosts, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	require.NoError(t, ReplaceConfigFile(path, newHosts, tbl))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(written), "2 beta")
}

func TestReplaceConfigFileWithNoExistingFileAlwaysSucceeds(t *testing.T) {
	tbl := newTestTable(t)
	path := filepath.Join(t.TempDir(), "hostconfig.txt")

	newHosts, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	require.NoError(t, ReplaceConfigFile(path, newHosts, tbl))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
