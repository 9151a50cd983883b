package engine

import "github.com/agentstate/agentstate/pkg/types"

// snapshotSource adapts Engine to pkg/snapshot's Source interface for
// Snapshot.
type snapshotSource struct{ e *Engine }

func (s snapshotSource) SnapshotObjects() ([]types.Object, error) {
	var out []types.Object
	for _, ns := range s.e.heap.Namespaces() {
		out = append(out, s.e.heap.LiveObjects(ns)...)
	}
	return out, nil
}

func (s snapshotSource) SnapshotLeases() ([]types.Lease, error) {
	return s.e.leases.All(), nil
}

func (s snapshotSource) SnapshotIdempotency() ([]types.IdempotencyEntry, error) {
	return s.e.idem.All(), nil
}

// restoreSink adapts Engine to pkg/snapshot's Sink interface for
// loading a snapshot at startup.
type restoreSink struct{ e *Engine }

func (s restoreSink) RestoreObject(o types.Object) error {
	s.e.heap.Restore(o)
	return nil
}

func (s restoreSink) RestoreLease(l types.Lease) error {
	s.e.leases.Restore(l)
	return nil
}

func (s restoreSink) RestoreIdempotency(entry types.IdempotencyEntry) error {
	s.e.idem.Restore(entry)
	return nil
}
