package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentstate/agentstate/pkg/types"
	"github.com/agentstate/agentstate/pkg/wal"
)

// seqCounters hands out monotonically increasing commit_seq values per
// key (a namespace, or the reserved leaseNamespace). It is the single
// source of truth for sequence assignment; heap.Apply and lease.Table
// entries simply carry whatever seq this assigns.
type seqCounters struct {
	mu sync.Mutex
	m  map[string]uint64
}

func newSeqCounters() *seqCounters {
	return &seqCounters{m: make(map[string]uint64)}
}

func (s *seqCounters) next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key]++
	return s.m[key]
}

// snapshot returns a copy of every key's current counter value, used
// when creating a point-in-time snapshot so each namespace (and
// leaseNamespace) is bookmarked at its own highest committed
// commit_seq rather than a single value shared across namespaces.
func (s *seqCounters) snapshot() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// observe advances key's counter to seq if seq is higher, used during
// WAL recovery replay to restore the counters to their pre-crash state.
func (s *seqCounters) observe(key string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.m[key] {
		s.m[key] = seq
	}
}

// namespaceMutex returns the mutex serializing commits to key (a
// namespace name, or leaseNamespace), creating it on first use.
func (e *Engine) namespaceMutex(key string) *sync.Mutex {
	v, _ := e.nsMu.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// commit runs the commit protocol for one staged record: assign seq and
// stamp commit_ts (both done by the caller before building rec, so the
// timestamp travels inside the record's own payload and survives
// crash recovery intact), stage to the WAL, await sync, then apply to
// memory and publish to subscribers. Callers must hold the mutex for
// rec.Namespace (or leaseNamespace) for the duration of commit.
//
// Cancellation before the WAL append begins discards the record and
// returns Cancelled without touching any state (committed is false).
// Once the append has begun there is no discarding it: a record
// reaching the segment may already be visible to a crash-recovery
// replay, so apply always runs on a successful sync and committed is
// true even if ctx was cancelled while the append was in flight — the
// caller still receives Cancelled so it knows not to trust the result
// as acknowledged, but must not undo state apply already committed.
func (e *Engine) commit(ctx context.Context, rec wal.Record, apply func()) (committed bool, err error) {
	// A commit that fails gives its commit_seq back (the caller still
	// holds the namespace mutex), so the sequence has no gap.
	unassign := func() {
		e.seq.mu.Lock()
		if e.seq.m[rec.Namespace] == rec.CommitSeq {
			e.seq.m[rec.Namespace]--
		}
		e.seq.mu.Unlock()
	}

	if e.degraded.Load() {
		unassign()
		return false, types.New("engine.commit", types.KindPersistentStorage, fmt.Errorf("engine is in degraded mode"))
	}

	select {
	case <-ctx.Done():
		unassign()
		return false, types.New("engine.commit", types.KindCancelled, ctx.Err())
	default:
	}

	if e.wal != nil {
		if err := e.wal.Append(rec); err != nil {
			e.degraded.Store(true)
			unassign()
			return false, err
		}
	}

	apply()
	e.publish(rec)

	if err := ctx.Err(); err != nil {
		return true, types.New("engine.commit", types.KindCancelled, err)
	}
	return true, nil
}

// publish translates a just-applied WAL record into a watch event, for
// record kinds the change feed describes (put/delete). Lease commits
// do not currently appear on the object change feed.
func (e *Engine) publish(rec wal.Record) {
	ev, ok, err := decodeEvent(rec)
	if err != nil || !ok {
		return
	}
	e.hub.Publish(ev)
}
