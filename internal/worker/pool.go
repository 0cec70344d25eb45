package worker

import (
	"context"

	"github.com/holger24/AFD-sub006/internal/hst"
	"github.com/holger24/AFD-sub006/internal/sched"
	"github.com/holger24/AFD-sub006/internal/worker/protocol"
)

// JobSource resolves a sched.Job into the protocol target, file list,
// and per-host options a Worker needs. internal/sched never knows
// these details; Pool bridges the two packages.
type JobSource interface {
	Resolve(job *sched.Job) (Options, error)
}

// Pool implements sched.Dispatcher by constructing a Worker per job
// and running it in its own goroutine, the concurrency model spec.md
// §4.4/§4.5 assumes (one PW instance per in-flight job).
type Pool struct {
	hst      *hst.Table
	registry protocol.Registry
	source   JobSource
	trace    TraceSink
	confirm  ConfirmSink
}

// NewPool returns a Pool bound to table, a protocol registry, and a
// JobSource.
func NewPool(table *hst.Table, registry protocol.Registry, source JobSource, trace TraceSink, confirm ConfirmSink) *Pool {
	return &Pool{hst: table, registry: registry, source: source, trace: trace, confirm: confirm}
}

// Dispatch implements sched.Dispatcher. slot is the HST job-slot index
// the scheduler already acquired for job, and is threaded straight
// into New so the worker reports progress into that slot rather than
// always slot 0.
func (p *Pool) Dispatch(job *sched.Job, procID uint32, slot int) (sched.Handle, error) {
	opts, err := p.source.Resolve(job)
	if err != nil {
		return nil, err
	}

	var proto protocol.Protocol
	if !opts.Simulate {
		dial, ok := p.registry.Get(opts.protocolName())
		if !ok {
			return nil, errUnknownProtocol(opts.protocolName())
		}
		proto = dial(opts.Target)
	}

	w := New(opts, proto, p.hst, job.HostRow, slot, p.trace, p.confirm)
	go w.Run(context.Background())
	return w, nil
}

// protocolName looks up which registry entry this job's options were
// resolved to, defaulting to "ftp" only if JobSource left it unset.
func (o Options) protocolName() string {
	if o.ProtocolName != "" {
		return o.ProtocolName
	}
	return "ftp"
}

type errUnknownProtocol string

func (e errUnknownProtocol) Error() string { return "worker: unknown protocol " + string(e) }
