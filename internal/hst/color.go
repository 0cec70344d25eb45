package hst

import "time"

// inWindow reports whether now falls in [start, end], treating a zero
// endpoint as open on that side (spec.md §4.1 "active time window").
func inWindow(start, end, now time.Time) bool {
	if !start.IsZero() && now.Before(start) {
		return false
	}
	if !end.IsZero() && now.After(end) {
		return false
	}
	return true
}

// classify picks between OFFLINE, ACKNOWLEDGED, and a caller-supplied
// default, following spec.md §4.1 step 3/4's "classify by (in order):
// OFFLINE (static or within active time window), ACKNOWLEDGED (static
// or within window), else <default>".
func classify(h *HostSlot, now time.Time, def Color) Color {
	window := inWindow(h.StartEventHandle, h.EndEventHandle, now)
	if h.HostStatus&HostErrorOfflineStatic != 0 {
		return ColorOffline
	}
	if h.HostStatus&HostErrorOffline != 0 && (h.HostStatus&HostErrorOfflineT == 0 || window) {
		return ColorOffline
	}
	if h.HostStatus&HostErrorAcknowledged != 0 && (h.HostStatus&HostErrorAcknowledgedT == 0 || window) {
		return ColorAcknowledged
	}
	return def
}

// DeriveColor computes the visible status color per spec.md §4.1's
// ordered cascade (first match wins for steps 1-6; step 7 then
// overrides the steps 3-6 outcome, never steps 1-2's structural
// states).
func DeriveColor(h *HostSlot, now time.Time) Color {
	if h.SpecialFlag&HostDisabled != 0 {
		return ColorNeutral
	}
	if !h.InConfig {
		return ColorDefault
	}

	var base Color
	switch {
	case h.MaxErrors > 0 && h.ErrorCounter >= h.MaxErrors:
		base = classify(h, now, ColorNotWorking)
	case h.HostStatus&HostWarnTimeReached != 0:
		base = classify(h, now, ColorWarning)
	case h.ActiveTransfers() > 0:
		base = ColorActive
	default:
		base = ColorNormal
	}

	if h.HostStatus&ErrorHostsInGroup != 0 {
		base = ColorNotWorking
	} else if h.HostStatus&WarnHostsInGroup != 0 {
		base = ColorWarning
	}
	return base
}
