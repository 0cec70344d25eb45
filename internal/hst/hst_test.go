package hst

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, rows int) *Table {
	t.Helper()
	dir := t.TempDir()
	tbl, err := Attach(filepath.Join(dir, "hst.dat"), filepath.Join(dir, "hst.lck"), rows, true)
	require.NoError(t, err)
	t.Cleanup(func() { tbl.Close() })
	return tbl
}

func baseHosts() []ConfigHost {
	return []ConfigHost{
		{HostID: 1, HostAlias: "alpha", AllowedTransfers: 2, MaxErrors: 3, RealHostname: [2]string{"alpha-a", "alpha-b"}, HostToggleStr: "AB"},
		{HostID: 2, HostAlias: "beta", AllowedTransfers: 1, MaxErrors: 2},
	}
}

func TestReloadFromConfigInstallsDefaults(t *testing.T) {
	tbl := newTestTable(t, 4)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()))

	row, err := tbl.Lookup(1)
	require.NoError(t, err)
	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, "alpha", h.HostAlias)
	assert.Equal(t, uint32(3), h.MaxErrors)
	assert.True(t, h.InConfig)
	assert.Equal(t, byte('A'), h.HostToggle)
}

func TestReloadIsNoOpWhenUnchanged(t *testing.T) {
	tbl := newTestTable(t, 4)
	hosts := baseHosts()
	require.NoError(t, tbl.ReloadFromConfig(hosts))

	row, err := tbl.Lookup(1)
	require.NoError(t, err)
	require.NoError(t, tbl.SetFlag(row, PauseQueue))
	require.NoError(t, tbl.AdjustCounters(row, 5, 500))

	before, err := tbl.ReadRow(row)
	require.NoError(t, err)

	// Reloading the identical config must preserve runtime values
	// (R2): pause flag and counters survive, since PauseQueue is
	// preserved by ReloadFromConfig's "preserve existing runtime
	// values" rule.
	require.NoError(t, tbl.ReloadFromConfig(hosts))
	after, err := tbl.ReadRow(row)
	require.NoError(t, err)

	assert.Equal(t, before.TotalFileCounter, after.TotalFileCounter)
	assert.Equal(t, before.TotalFileSize, after.TotalFileSize)
	assert.Equal(t, before.HostStatus&PauseQueue, after.HostStatus&PauseQueue)
}

func TestReloadVanishedHostPublishesEvent(t *testing.T) {
	tbl := newTestTable(t, 4)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()))

	var events []Event
	tbl.Subscribe(func(e Event) { events = append(events, e) })

	require.NoError(t, tbl.ReloadFromConfig(baseHosts()[:1])) // drop host 2

	var sawVanished bool
	for _, e := range events {
		if e.Kind == EventHostVanished && e.HostID == 2 {
			sawVanished = true
		}
	}
	assert.True(t, sawVanished)

	_, err := tbl.Lookup(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleFlagRoundTrip(t *testing.T) {
	tbl := newTestTable(t, 2)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	before, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.True(t, before.EndEventHandle.IsZero())

	// R1: toggling DISABLE_HOST (SpecialFlag) twice returns to the
	// original state, including the event-window fields.
	require.NoError(t, tbl.writeRegion(row, RegionHS, func(h *HostSlot) { h.SpecialFlag ^= HostDisabled }))
	require.NoError(t, tbl.writeRegion(row, RegionHS, func(h *HostSlot) { h.SpecialFlag ^= HostDisabled }))

	after, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, before.SpecialFlag, after.SpecialFlag)
	assert.True(t, after.EndEventHandle.IsZero())
}

func TestJobSlotOwnershipInvariant(t *testing.T) {
	tbl := newTestTable(t, 2)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	require.NoError(t, tbl.AcquireJobSlot(row, 0, 4242))
	err = tbl.AcquireJobSlot(row, 0, 9999)
	assert.Error(t, err, "re-acquiring an owned slot must fail (I2)")

	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, 1, h.ActiveTransfers())

	require.NoError(t, tbl.ReleaseJobSlot(row, 0))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ActiveTransfers())
}

func TestDeriveColorCascade(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	h := &HostSlot{InConfig: true, MaxErrors: 3, ErrorCounter: 0}
	assert.Equal(t, ColorNormal, DeriveColor(h, now))

	h.Jobs[0].ProcID = 123
	h.AllowedTransfers = 1
	assert.Equal(t, ColorActive, DeriveColor(h, now))

	h2 := &HostSlot{InConfig: true, MaxErrors: 2, ErrorCounter: 2}
	assert.Equal(t, ColorNotWorking, DeriveColor(h2, now))

	h2.HostStatus |= HostErrorOfflineStatic
	assert.Equal(t, ColorOffline, DeriveColor(h2, now))

	h3 := &HostSlot{SpecialFlag: HostDisabled}
	assert.Equal(t, ColorNeutral, DeriveColor(h3, now))

	h4 := &HostSlot{InConfig: false}
	assert.Equal(t, ColorDefault, DeriveColor(h4, now))

	h5 := &HostSlot{InConfig: true, MaxErrors: 2, ErrorCounter: 2, HostStatus: ErrorHostsInGroup}
	assert.Equal(t, ColorNotWorking, DeriveColor(h5, now))

	h6 := &HostSlot{InConfig: true, HostStatus: WarnHostsInGroup}
	assert.Equal(t, ColorWarning, DeriveColor(h6, now))
}

func TestSetDisabledRoundTrip(t *testing.T) {
	tbl := newTestTable(t, 1)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()[:1]))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	require.NoError(t, tbl.SetDisabled(row, true))
	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.NotZero(t, h.SpecialFlag&HostDisabled)

	require.NoError(t, tbl.SetDisabled(row, false))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Zero(t, h.SpecialFlag&HostDisabled)
}

func TestSwitchToggleAndRealHostname(t *testing.T) {
	tbl := newTestTable(t, 1)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()[:1]))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	require.NoError(t, tbl.SetRealHostname(row, 0, "primary"))
	require.NoError(t, tbl.SetRealHostname(row, 1, "secondary"))

	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, byte('A'), h.HostToggle)

	require.NoError(t, tbl.SwitchToggle(row))
	h, err = tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, byte('B'), h.HostToggle)
	assert.Equal(t, "secondary", h.RealHostname[h.TogglePos])
}

func TestSetDebugLevel(t *testing.T) {
	tbl := newTestTable(t, 1)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()[:1]))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	require.NoError(t, tbl.SetDebug(row, FullTrace))
	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, FullTrace, h.Debug)
}

func TestAdjustCountersClampsAtZero(t *testing.T) {
	tbl := newTestTable(t, 1)
	require.NoError(t, tbl.ReloadFromConfig(baseHosts()[:1]))
	row, err := tbl.Lookup(1)
	require.NoError(t, err)

	require.NoError(t, tbl.AdjustCounters(row, 3, 300))
	require.NoError(t, tbl.AdjustCounters(row, -10, -10))

	h, err := tbl.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h.TotalFileCounter)
	assert.Equal(t, uint64(0), h.TotalFileSize)
}
