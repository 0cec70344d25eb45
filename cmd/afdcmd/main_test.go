package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holger24/AFD-sub006/internal/hst"
)

func TestParseRealHostname(t *testing.T) {
	pos, name, err := parseRealHostname("1:backup.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, "backup.example.com", name)

	_, _, err = parseRealHostname("nocolon")
	assert.Error(t, err)

	_, _, err = parseRealHostname("x:name")
	assert.Error(t, err)
}

func newTestHST(t *testing.T) *hst.Table {
	t.Helper()
	dir := t.TempDir()
	tbl, err := hst.Attach(filepath.Join(dir, "hst.dat"), filepath.Join(dir, "hst.lck"), 4, true)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	require.NoError(t, tbl.ReloadFromConfig([]hst.ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 2, MaxErrors: 3,
			RealHostname: [2]string{"alpha-a", "alpha-b"}, HostToggleStr: "AB"},
	}))
	return tbl
}

func TestHostRowForAlias(t *testing.T) {
	tbl := newTestHST(t)

	row, ok := hostRowForAlias(tbl, "alpha")
	require.True(t, ok)

	_, ok = hostRowForAlias(tbl, "nonexistent")
	assert.False(t, ok)

	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.HostID)
}

// resetOpt clears every package-level flag var between subtests so
// applyHost only ever sees the one operation under test, mirroring how
// cobra leaves unset bool flags at their zero value between runs.
func resetOpt() { opt = struct {
	baseDir string
	hstRows int
	dstRows int

	startQueue, stopQueue       bool
	startTransfer, stopTransfer bool
	enableHost, disableHost     bool
	enableDir, disableDir       bool
	switchHost                  bool
	setRealHostname             string
	retry                       bool
	rescan                      bool
	debugOn, traceOn, fullTrace bool
	debugOff                    bool
	simulateOn, simulateOff     bool

	startAMG, stopAMG, toggleAMG bool
	startFD, stopFD, toggleFD    bool
	checkFileDir                 bool
	rereadLocInterfaceFile       bool
	showExecStat                 bool
	forceArchiveCheck            bool
	searchOldFiles               bool
}{} }

func TestApplyHostTogglesDisableAndSwitch(t *testing.T) {
	tbl := newTestHST(t)
	c := &controller{hstTable: tbl}

	resetOpt()
	opt.disableHost = true
	require.NoError(t, c.applyHost("alpha"))
	row, _ := hostRowForAlias(tbl, "alpha")
	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.NotZero(t, h.SpecialFlag&hst.HostDisabled)

	resetOpt()
	opt.enableHost = true
	require.NoError(t, c.applyHost("alpha"))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Zero(t, h.SpecialFlag&hst.HostDisabled)

	resetOpt()
	opt.switchHost = true
	require.NoError(t, c.applyHost("alpha"))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, byte('B'), h.HostToggle)

	resetOpt()
	require.Error(t, c.applyHost("nonexistent"))
}

func TestApplyHostSetRealHostnameAndDebug(t *testing.T) {
	tbl := newTestHST(t)
	c := &controller{hstTable: tbl}
	row, _ := hostRowForAlias(tbl, "alpha")

	resetOpt()
	opt.setRealHostname = "1:backup.example.com"
	require.NoError(t, c.applyHost("alpha"))
	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, "backup.example.com", h.RealHostname[1])

	resetOpt()
	opt.traceOn = true
	require.NoError(t, c.applyHost("alpha"))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, hst.Trace, h.Debug)

	resetOpt()
	opt.simulateOn = true
	require.NoError(t, c.applyHost("alpha"))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.NotZero(t, h.HostStatus&hst.SimulateSendMode)
}
