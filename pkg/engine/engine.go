package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentstate/agentstate/pkg/config"
	"github.com/agentstate/agentstate/pkg/heap"
	"github.com/agentstate/agentstate/pkg/idempotency"
	"github.com/agentstate/agentstate/pkg/idgen"
	"github.com/agentstate/agentstate/pkg/lease"
	"github.com/agentstate/agentstate/pkg/log"
	"github.com/agentstate/agentstate/pkg/snapshot"
	"github.com/agentstate/agentstate/pkg/types"
	"github.com/agentstate/agentstate/pkg/wal"
	"github.com/agentstate/agentstate/pkg/watch"
)

// Engine is the single entry point into a running agentstate instance:
// every External Interface operation is a method on it, and every
// mutation flows through its commit coordinator.
type Engine struct {
	cfg config.Config

	heap      *heap.Heap
	leases    *lease.Table
	idem      *idempotency.Cache
	hub       *watch.Hub
	snapshots *snapshot.Store
	wal       *wal.WAL // nil in volatile (no DataDir) mode

	seq  *seqCounters
	nsMu sync.Map // string -> *sync.Mutex

	degraded atomic.Bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// sweepInterval is how often the background sweeper looks for
// TTL-expired objects to turn into real delete commits. Reads never
// depend on the sweeper to hide an expired object (pkg/heap already
// enforces that at read time) — the sweeper just keeps the heap's tag
// index and version chains from accumulating dead entries forever.
const sweepInterval = 5 * time.Second

// Open starts an engine rooted at cfg.DataDir, replaying the most
// recent snapshot and any WAL records committed after it before
// accepting new commits. In volatile mode (cfg.Durable() == false) the
// engine starts empty and commits are never persisted.
func Open(cfg config.Config) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		heap:      heap.New(),
		leases:    lease.NewTable(),
		idem:      idempotency.New(time.Duration(cfg.Idempotency.RetentionSeconds) * time.Second),
		seq:       newSeqCounters(),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	e.hub = watch.NewHub(cfg.Watch.BufferEvents, nil)

	if !cfg.Durable() {
		go e.runSweeper()
		return e, nil
	}

	e.snapshots = snapshot.NewStore(cfg.DataDir)
	if err := e.restoreFromSnapshot(); err != nil {
		return nil, err
	}

	w, err := wal.Open(wal.Config{
		Dir:           cfg.DataDir,
		SegmentBytes:  int64(cfg.WAL.SegmentBytes.Bytes()),
		FlushInterval: time.Duration(cfg.WAL.FlushIntervalMS) * time.Millisecond,
		SyncMode:      cfg.WAL.SyncMode,
	})
	if err != nil {
		return nil, err
	}
	e.wal = w
	e.hub = watch.NewHub(cfg.Watch.BufferEvents, walHistoryAdapter{wal: w})

	if _, err := wal.Recover(cfg.DataDir, e.replay); err != nil {
		return nil, err
	}
	go e.runSweeper()
	return e, nil
}

// restoreFromSnapshot loads the latest snapshot, if any, into the
// heap/lease/idempotency state and advances each namespace's sequence
// counter (including leaseNamespace) to its own recorded bookmark.
func (e *Engine) restoreFromSnapshot() error {
	id, err := e.snapshots.Latest()
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	bookmarks, _, err := e.snapshots.Restore(id, restoreSink{e})
	if err != nil {
		return err
	}
	for ns, seq := range bookmarks {
		e.seq.observe(ns, seq)
	}
	return nil
}

// replay applies a single recovered WAL record to in-memory state,
// used both by wal.Recover at startup and as this package's bridge
// from wal.Record to the heap/lease/idempotency updates commit() would
// otherwise perform live.
func (e *Engine) replay(rec wal.Record) error {
	switch rec.Kind {
	case wal.KindPut:
		var p putPayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		obj := types.Object{
			Namespace: rec.Namespace, ID: p.ID, CommitSeq: rec.CommitSeq, CommitTS: p.CommitTS,
			Body: p.Body, Tags: p.Tags, ExpiresAt: p.ExpiresAt,
		}
		e.heap.Apply(obj)
		if p.IdempotencyKey != "" {
			resp, _ := json.Marshal(obj)
			e.idem.Record(types.IdempotencyEntry{
				Key: p.IdempotencyKey, Namespace: rec.Namespace, Fingerprint: p.Fingerprint,
				CommitSeq: rec.CommitSeq, CommitTS: p.CommitTS, Response: resp,
			})
		}
	case wal.KindDelete:
		var p deletePayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		e.heap.Apply(types.Object{
			Namespace: rec.Namespace, ID: p.ID, CommitSeq: rec.CommitSeq, CommitTS: p.CommitTS, Tombstone: true,
		})
		if p.IdempotencyKey != "" {
			e.idem.Record(types.IdempotencyEntry{
				Key: p.IdempotencyKey, Namespace: rec.Namespace, Fingerprint: p.Fingerprint,
				CommitSeq: rec.CommitSeq, CommitTS: p.CommitTS,
			})
		}
	case wal.KindLeaseAcquire, wal.KindLeaseRenew, wal.KindLeaseRelease:
		var p leasePayload
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return err
		}
		e.replayLease(rec.Kind, p)
	}
	e.seq.observe(rec.Namespace, rec.CommitSeq)
	return nil
}

func (e *Engine) replayLease(kind wal.Kind, p leasePayload) {
	switch kind {
	case wal.KindLeaseAcquire:
		e.leases.Restore(types.Lease{
			Name: p.Name, Owner: p.Owner, Token: p.Token,
			FencingToken: p.FencingToken, ExpiresAt: p.ExpiresAt, AcquiredAt: p.CommitTS,
		})
	case wal.KindLeaseRenew:
		if l, ok := e.leases.Get(p.Name); ok {
			l.ExpiresAt = p.ExpiresAt
			e.leases.Restore(l)
		}
	case wal.KindLeaseRelease:
		e.leases.Release(p.Name, p.Owner, p.Token)
	}
}

// PutRequest describes a put commit. ID is generated if empty.
type PutRequest struct {
	Namespace      string
	ID             string
	Body           json.RawMessage
	Tags           []string
	TTL            time.Duration
	IdempotencyKey string
	FenceName      string
	FenceToken     uint64
}

// Put commits a new version of (namespace, id), returning the
// committed Object.
func (e *Engine) Put(ctx context.Context, req PutRequest) (types.Object, error) {
	if req.Namespace == "" {
		return types.Object{}, types.New("engine.Put", types.KindInvalidArgument, fmt.Errorf("namespace is required"))
	}
	id := req.ID
	if id == "" {
		var err error
		id, err = idgen.New(12)
		if err != nil {
			return types.Object{}, types.New("engine.Put", types.KindPersistentStorage, err)
		}
	}

	fingerprint, err := idempotency.Fingerprint(req.Namespace, "put", req.ID, req.Body, req.Tags)
	if err != nil {
		return types.Object{}, types.New("engine.Put", types.KindInvalidArgument, err)
	}

	mu := e.namespaceMutex(req.Namespace)
	mu.Lock()
	defer mu.Unlock()

	if req.IdempotencyKey != "" {
		if cached, ok, err := e.idem.Check(req.Namespace, req.IdempotencyKey, fingerprint); err != nil {
			return types.Object{}, err
		} else if ok {
			var obj types.Object
			if err := json.Unmarshal(cached.Response, &obj); err != nil {
				return types.Object{}, types.New("engine.Put", types.KindPersistentStorage, err)
			}
			return obj, nil
		}
	}
	if req.FenceName != "" {
		if err := e.leases.CheckFence(req.FenceName, req.FenceToken); err != nil {
			return types.Object{}, err
		}
	}

	seq := e.seq.next(req.Namespace)
	ts := time.Now()
	var expiresAt time.Time
	if req.TTL > 0 {
		expiresAt = ts.Add(req.TTL)
	}
	payload, err := json.Marshal(putPayload{
		ID: id, Body: req.Body, Tags: req.Tags, ExpiresAt: expiresAt, CommitTS: ts,
		IdempotencyKey: req.IdempotencyKey, Fingerprint: fingerprint,
	})
	if err != nil {
		return types.Object{}, types.New("engine.Put", types.KindInvalidArgument, err)
	}
	rec := wal.Record{Kind: wal.KindPut, Namespace: req.Namespace, CommitSeq: seq, Payload: payload}

	obj := types.Object{
		Namespace: req.Namespace, ID: id, CommitSeq: seq, CommitTS: ts,
		Body: req.Body, Tags: req.Tags, ExpiresAt: expiresAt,
	}
	committed, err := e.commit(ctx, rec, func() {
		e.heap.Apply(obj)
		if req.IdempotencyKey != "" {
			resp, _ := json.Marshal(obj)
			e.idem.Record(types.IdempotencyEntry{
				Key: req.IdempotencyKey, Namespace: req.Namespace, Fingerprint: fingerprint,
				CommitSeq: seq, CommitTS: ts, Response: resp,
			})
		}
	})
	if err != nil && !committed {
		return types.Object{}, err
	}
	return obj, err
}

// DeleteRequest describes a delete commit.
type DeleteRequest struct {
	Namespace      string
	ID             string
	IdempotencyKey string
	FenceName      string
	FenceToken     uint64
}

// Delete commits a tombstone for (namespace, id). Deleting an id that
// does not currently exist still commits a tombstone version — Delete
// is not conditioned on prior existence.
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) error {
	if req.Namespace == "" || req.ID == "" {
		return types.New("engine.Delete", types.KindInvalidArgument, fmt.Errorf("namespace and id are required"))
	}

	fingerprint, err := idempotency.Fingerprint(req.Namespace, "delete", req.ID, nil, nil)
	if err != nil {
		return types.New("engine.Delete", types.KindInvalidArgument, err)
	}

	mu := e.namespaceMutex(req.Namespace)
	mu.Lock()
	defer mu.Unlock()

	if req.IdempotencyKey != "" {
		if _, ok, err := e.idem.Check(req.Namespace, req.IdempotencyKey, fingerprint); err != nil {
			return err
		} else if ok {
			return nil
		}
	}
	if req.FenceName != "" {
		if err := e.leases.CheckFence(req.FenceName, req.FenceToken); err != nil {
			return err
		}
	}

	seq := e.seq.next(req.Namespace)
	ts := time.Now()
	payload, err := json.Marshal(deletePayload{ID: req.ID, CommitTS: ts, IdempotencyKey: req.IdempotencyKey, Fingerprint: fingerprint})
	if err != nil {
		return types.New("engine.Delete", types.KindInvalidArgument, err)
	}
	rec := wal.Record{Kind: wal.KindDelete, Namespace: req.Namespace, CommitSeq: seq, Payload: payload}

	_, err = e.commit(ctx, rec, func() {
		e.heap.Apply(types.Object{Namespace: req.Namespace, ID: req.ID, CommitSeq: seq, CommitTS: ts, Tombstone: true})
		if req.IdempotencyKey != "" {
			e.idem.Record(types.IdempotencyEntry{Key: req.IdempotencyKey, Namespace: req.Namespace, Fingerprint: fingerprint, CommitSeq: seq, CommitTS: ts})
		}
	})
	return err
}

// Get returns the version of (namespace, id) visible as of atSeq, or
// the latest version if atSeq is zero.
func (e *Engine) Get(namespace, id string, atSeq uint64) (types.Object, error) {
	return e.heap.Get(namespace, id, atSeq)
}

// Query runs q against namespace's current live objects.
func (e *Engine) Query(namespace string, q heap.Query) ([]types.Object, error) {
	return e.heap.Run(namespace, q)
}

// LeaseAcquire grants name to owner for ttl.
func (e *Engine) LeaseAcquire(ctx context.Context, name, owner string, ttl time.Duration, idempotencyKey string) (types.Lease, error) {
	if name == "" || owner == "" {
		return types.Lease{}, types.New("engine.LeaseAcquire", types.KindInvalidArgument, fmt.Errorf("name and owner are required"))
	}
	ttl = clampTTL(ttl, e.cfg.Lease)
	fingerprint, _ := idempotency.Fingerprint(leaseNamespace, "lease_acquire", name, nil, []string{owner})

	mu := e.namespaceMutex(leaseNamespace)
	mu.Lock()
	defer mu.Unlock()

	if idempotencyKey != "" {
		if cached, ok, err := e.idem.Check(leaseNamespace, idempotencyKey, fingerprint); err != nil {
			return types.Lease{}, err
		} else if ok {
			var l types.Lease
			if err := json.Unmarshal(cached.Response, &l); err != nil {
				return types.Lease{}, types.New("engine.LeaseAcquire", types.KindPersistentStorage, err)
			}
			return l, nil
		}
	}

	now := time.Now()
	granted, err := e.leases.Acquire(name, owner, ttl, now)
	if err != nil {
		return types.Lease{}, err
	}

	seq := e.seq.next(leaseNamespace)
	ts := time.Now()
	payload, _ := json.Marshal(leasePayload{
		Name: name, Owner: owner, Token: granted.Token, FencingToken: granted.FencingToken,
		ExpiresAt: granted.ExpiresAt, CommitTS: ts,
		IdempotencyKey: idempotencyKey, Fingerprint: fingerprint,
	})
	rec := wal.Record{Kind: wal.KindLeaseAcquire, Namespace: leaseNamespace, CommitSeq: seq, Payload: payload}

	var result types.Lease
	committed, err := e.commit(ctx, rec, func() {
		result = granted
		if idempotencyKey != "" {
			resp, _ := json.Marshal(result)
			e.idem.Record(types.IdempotencyEntry{Key: idempotencyKey, Namespace: leaseNamespace, Fingerprint: fingerprint, CommitSeq: seq, CommitTS: ts, Response: resp})
		}
	})
	if err != nil && !committed {
		// The WAL never accepted the record: undo the in-memory
		// acquire so the lease is available again, rather than leaving
		// a grant no WAL record backs.
		e.leases.Release(name, owner, granted.Token)
		return types.Lease{}, err
	}
	return result, err
}

// LeaseRenew extends owner's hold on name without changing its fencing
// token.
func (e *Engine) LeaseRenew(ctx context.Context, name, owner, token string, ttl time.Duration) (types.Lease, error) {
	ttl = clampTTL(ttl, e.cfg.Lease)

	mu := e.namespaceMutex(leaseNamespace)
	mu.Lock()
	defer mu.Unlock()

	prev, _ := e.leases.Get(name)
	renewed, err := e.leases.Renew(name, owner, token, ttl, time.Now())
	if err != nil {
		return types.Lease{}, err
	}

	seq := e.seq.next(leaseNamespace)
	ts := time.Now()
	payload, _ := json.Marshal(leasePayload{
		Name: name, Owner: owner, Token: token, FencingToken: renewed.FencingToken,
		ExpiresAt: renewed.ExpiresAt, CommitTS: ts,
	})
	rec := wal.Record{Kind: wal.KindLeaseRenew, Namespace: leaseNamespace, CommitSeq: seq, Payload: payload}

	var result types.Lease
	committed, err := e.commit(ctx, rec, func() { result = renewed })
	if err != nil && !committed {
		e.leases.Restore(prev)
		return types.Lease{}, err
	}
	return result, err
}

// LeaseRelease gives up owner's hold on name.
func (e *Engine) LeaseRelease(ctx context.Context, name, owner, token string) error {
	mu := e.namespaceMutex(leaseNamespace)
	mu.Lock()
	defer mu.Unlock()

	prev, _ := e.leases.Get(name)
	if err := e.leases.Release(name, owner, token); err != nil {
		return err
	}

	seq := e.seq.next(leaseNamespace)
	payload, _ := json.Marshal(leasePayload{Name: name, Owner: owner, Token: token, CommitTS: time.Now()})
	rec := wal.Record{Kind: wal.KindLeaseRelease, Namespace: leaseNamespace, CommitSeq: seq, Payload: payload}

	committed, err := e.commit(ctx, rec, func() {})
	if err != nil && !committed {
		e.leases.Restore(prev)
	}
	return err
}

func clampTTL(ttl time.Duration, cfg config.LeaseConfig) time.Duration {
	if ttl <= 0 {
		return time.Duration(cfg.DefaultTTLSeconds) * time.Second
	}
	maxTTL := time.Duration(cfg.MaxTTLSeconds) * time.Second
	if maxTTL > 0 && ttl > maxTTL {
		return maxTTL
	}
	return ttl
}

// Watch opens a change-feed subscription to namespace starting just
// after fromSeq.
func (e *Engine) Watch(namespace string, fromSeq uint64, bufferEvents int) *watch.Subscriber {
	return e.hub.Subscribe(namespace, fromSeq, bufferEvents)
}

// Snapshot captures the current committed state across every
// namespace into a new snapshot directory, each namespace (including
// the reserved lease namespace) bookmarked at its own highest
// committed commit_seq, and returns the snapshot's id.
func (e *Engine) Snapshot() (string, error) {
	if e.snapshots == nil {
		return "", types.New("engine.Snapshot", types.KindInvalidArgument, fmt.Errorf("engine is running in volatile mode"))
	}
	id, err := idgen.New(8)
	if err != nil {
		return "", types.New("engine.Snapshot", types.KindPersistentStorage, err)
	}
	bookmarks := e.seq.snapshot()
	if err := e.snapshots.Create(id, bookmarks, snapshotSource{e}); err != nil {
		return "", types.New("engine.Snapshot", types.KindPersistentStorage, err)
	}
	return id, nil
}

// TrimWAL removes WAL segments already covered by snapshotID, the
// result of a prior Snapshot call.
func (e *Engine) TrimWAL(snapshotID string) error {
	if e.wal == nil {
		return types.New("engine.TrimWAL", types.KindInvalidArgument, fmt.Errorf("engine is running in volatile mode"))
	}
	bookmarks, err := e.snapshots.BookmarkOf(snapshotID)
	if err != nil {
		return types.New("engine.TrimWAL", types.KindInvalidArgument, err)
	}
	return e.wal.Trim(bookmarks, snapshotID)
}

// Manifest returns the current WAL manifest.
func (e *Engine) Manifest() types.Manifest {
	if e.wal == nil {
		return types.Manifest{}
	}
	return e.wal.Manifest()
}

// Degraded reports whether a persistent storage failure has put the
// engine into fail-stop mode.
func (e *Engine) Degraded() bool {
	return e.degraded.Load()
}

// Close stops the background sweeper and flushes and releases the
// engine's durable resources.
func (e *Engine) Close() error {
	close(e.sweepStop)
	<-e.sweepDone

	if e.wal == nil {
		return nil
	}
	if err := e.wal.Close(); err != nil {
		log.Logger.Error().Err(err).Msg("engine: closing wal")
		return err
	}
	return nil
}
