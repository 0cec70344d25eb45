package hst

import "fmt"

// ConfigHost is one parsed entry from the authoritative host-config
// file (spec.md §6.7), as produced by internal/hostconfig.
type ConfigHost struct {
	HostID           uint32
	HostAlias        string
	HostToggleStr    string
	RealHostname     [2]string
	Protocol         uint32
	AllowedTransfers uint8
	MaxErrors        uint32
	HostStatus       HostStatus
}

// Event is published through Table.Subscribe so UI-side selection
// state can stay in sync with HST without the table knowing about UIs
// (spec.md §3.1 Lifecycle: "vanished entries cause their
// inverse/selected bits to be decremented from any UI-side selection
// count").
type Event struct {
	Kind   EventKind
	HostID uint32
	Row    int
}

// EventKind distinguishes the events ReloadFromConfig can emit.
type EventKind int

const (
	EventHostAdded EventKind = iota
	EventHostVanished
)

// Subscribe registers fn to be called (synchronously, in ReloadFromConfig's
// goroutine) for every Event a future reload produces.
func (t *Table) Subscribe(fn func(Event)) {
	t.subscribers = append(t.subscribers, fn)
}

func (t *Table) publish(ev Event) {
	for _, fn := range t.subscribers {
		fn(ev)
	}
}

// ReloadFromConfig implements spec.md §4.1's two-phase reload: (a)
// reconcile hosts against the parsed config in a scratch array,
// preserving existing runtime values where host_id matches and
// defaulting newly added entries; (b) install atomically. Allocation
// failures (here: insufficient rows for the new host count) are
// fatal to the call and never partially applied, matching "the table
// cannot be left half-installed".
func (t *Table) ReloadFromConfig(hosts []ConfigHost) error {
	if len(hosts) > t.RowCount() {
		return fmt.Errorf("hst: reload: %d hosts exceed table capacity %d", len(hosts), t.RowCount())
	}

	// Phase A: build the scratch array, preserving runtime values for
	// existing host_ids (matched first, insertion order preserved) and
	// remembering which existing rows have no match (vanished). Each
	// existing host keeps its current row so that re-ordering the
	// config file never leaves two rows claiming the same host_id.
	existingRow := make(map[uint32]int)
	freeRows := make([]int, 0, t.RowCount())
	rowIsFree := make([]bool, t.RowCount())
	for i := 0; i < t.RowCount(); i++ {
		h, err := t.ReadRow(i)
		if err != nil {
			return fmt.Errorf("hst: reload: read row %d: %w", i, err)
		}
		if h.InConfig {
			existingRow[h.HostID] = i
		} else {
			freeRows = append(freeRows, i)
			rowIsFree[i] = true
		}
	}
	nextFree := 0

	targetRow := make(map[uint32]int, len(hosts))
	for _, cfg := range hosts {
		if row, ok := existingRow[cfg.HostID]; ok {
			targetRow[cfg.HostID] = row
			continue
		}
		if nextFree >= len(freeRows) {
			return fmt.Errorf("hst: reload: no free row for new host_id %d", cfg.HostID)
		}
		targetRow[cfg.HostID] = freeRows[nextFree]
		nextFree++
	}

	type install struct {
		row  int
		slot *HostSlot
	}
	plan := make([]install, 0, len(hosts))
	var prevPlusMinusOpen = true // PM_OPEN_STATE default, see spec.md §9 Open Question
	for i, cfg := range hosts {
		row := targetRow[cfg.HostID]
		var slot *HostSlot
		if _, ok := existingRow[cfg.HostID]; ok {
			prior, err := t.ReadRow(row)
			if err != nil {
				return fmt.Errorf("hst: reload: read existing row %d: %w", row, err)
			}
			// Preserve runtime counters/flags, refresh identity/config fields.
			prior.HostAlias = cfg.HostAlias
			prior.HostToggleStr = cfg.HostToggleStr
			prior.RealHostname = cfg.RealHostname
			prior.Protocol = cfg.Protocol
			prior.AllowedTransfers = cfg.AllowedTransfers
			prior.MaxErrors = cfg.MaxErrors
			prior.HostStatus = cfg.HostStatus | (prior.HostStatus & (PauseQueue | StopTransfer | AutoPauseQueue | DangerPauseQueue | ErrorQueueSet))
			prior.InConfig = true
			slot = prior
		} else {
			slot = &HostSlot{
				HostID:           cfg.HostID,
				HostAlias:        cfg.HostAlias,
				HostToggleStr:    cfg.HostToggleStr,
				RealHostname:     cfg.RealHostname,
				Protocol:         cfg.Protocol,
				AllowedTransfers: cfg.AllowedTransfers,
				MaxErrors:        cfg.MaxErrors,
				HostStatus:       cfg.HostStatus,
				HostToggle:       'A',
				InConfig:         true,
			}
			// PAUSE_QUEUE stands in for the open/close state here: a
			// new host at index 0, or one whose predecessor's queue
			// is open, has PAUSE_QUEUE cleared (PM_OPEN_STATE); after
			// a predecessor with PAUSE_QUEUE set it keeps the config's
			// own PAUSE_QUEUE bit. Group entries are not distinguished
			// from plain hosts.
			if i == 0 || prevPlusMinusOpen {
				slot.HostStatus &^= PauseQueue
			}
		}
		prevPlusMinusOpen = slot.HostStatus&PauseQueue == 0
		plan = append(plan, install{row: row, slot: slot})
	}

	// Phase B: install atomically. A normal in-memory table install is
	// just a sequence of InitRow calls; we hold no partial state if it
	// fails partway only because InitRow itself cannot fail once the
	// capacity/free-row checks above have passed.
	for _, p := range plan {
		if err := t.InitRow(p.row, p.slot); err != nil {
			return fmt.Errorf("hst: reload: install row %d: %w", p.row, err)
		}
		t.publish(Event{Kind: EventHostAdded, HostID: p.slot.HostID, Row: p.row})
	}
	for hostID, row := range existingRow {
		if _, ok := targetRow[hostID]; !ok {
			var cleared HostSlot
			cleared.InConfig = false
			if err := t.InitRow(row, &cleared); err != nil {
				return fmt.Errorf("hst: reload: clear vanished row %d: %w", row, err)
			}
			t.publish(Event{Kind: EventHostVanished, HostID: hostID, Row: row})
		}
	}
	return nil
}
