// Package protocol defines the capability set a Protocol Worker
// variant must implement (spec.md §4.5: "polymorphic over the
// capability set {connect, authenticate, send-one-file or
// receive-one-file, disconnect}").
package protocol

import "context"

// File describes one file to transfer.
type File struct {
	LocalPath  string
	RemoteName string
	Size       int64
}

// Progress is called periodically during a transfer with the number
// of bytes sent so far, so the caller can mirror it into HST
// (spec.md §4.5: "periodically writes bytes_send[i] into HST").
type Progress func(sent int64)

// Protocol is one wire-protocol variant. Connect must also perform
// authentication; Send transfers exactly one file and reports
// progress through p. Close always runs, even after a failed Send, so
// implementations must tolerate being closed from any state.
type Protocol interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, f File, p Progress) error
	Close() error
}

// Dialer constructs a fresh, unconnected Protocol instance for one
// job's target host. internal/worker looks one up by name from a
// Registry.
type Dialer func(target Target) Protocol

// Target carries the per-host connection parameters a Dialer needs.
// Protocol variants use the subset relevant to them.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
	Dir      string // remote destination directory
}

// Registry maps a protocol name (as configured in the host-config
// file, §6.7) to its Dialer.
type Registry map[string]Dialer

// Get looks up name, returning ok=false if no variant is registered.
func (r Registry) Get(name string) (Dialer, bool) {
	d, ok := r[name]
	return d, ok
}
