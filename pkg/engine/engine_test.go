package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/config"
	"github.com/agentstate/agentstate/pkg/heap"
	"github.com/agentstate/agentstate/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestPutGetAndTimeTravel(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{"v":1}`)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.CommitSeq)

	second, err := e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{"v":2}`)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.CommitSeq)

	latest, err := e.Get("ns1", "a", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(latest.Body))

	old, err := e.Get("ns1", "a", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(old.Body))
}

func TestDeleteThenGetNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)

	require.NoError(t, e.Delete(context.Background(), DeleteRequest{Namespace: "ns1", ID: "a"}))

	_, err = e.Get("ns1", "a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestPutIdempotentReplay(t *testing.T) {
	e := newTestEngine(t)

	req := PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{"v":1}`), IdempotencyKey: "req-1"}
	first, err := e.Put(context.Background(), req)
	require.NoError(t, err)

	replay, err := e.Put(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.CommitSeq, replay.CommitSeq)

	conflicting := req
	conflicting.Body = json.RawMessage(`{"v":2}`)
	_, err = e.Put(context.Background(), conflicting)
	assert.ErrorIs(t, err, types.ErrIdempotencyConflict)
}

func TestPutFencedOutByStaleLeaseToken(t *testing.T) {
	e := newTestEngine(t)

	a, err := e.LeaseAcquire(context.Background(), "job1", "worker-a", 0, "")
	require.NoError(t, err)
	require.NoError(t, e.LeaseRelease(context.Background(), "job1", "worker-a", a.Token))

	b, err := e.LeaseAcquire(context.Background(), "job1", "worker-b", 0, "")
	require.NoError(t, err)

	_, err = e.Put(context.Background(), PutRequest{
		Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`),
		FenceName: "job1", FenceToken: a.FencingToken,
	})
	assert.ErrorIs(t, err, types.ErrFencedOut)

	_, err = e.Put(context.Background(), PutRequest{
		Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`),
		FenceName: "job1", FenceToken: b.FencingToken,
	})
	assert.NoError(t, err)
}

func TestQueryByTag(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`), Tags: []string{"kind:task"}})
	require.NoError(t, err)
	_, err = e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "b", Body: json.RawMessage(`{}`), Tags: []string{"kind:other"}})
	require.NoError(t, err)

	results, err := e.Query("ns1", heap.Query{TagFilter: []string{"kind:task"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestWatchReceivesPutAndDelete(t *testing.T) {
	e := newTestEngine(t)
	sub := e.Watch("ns1", 0, 8)
	defer sub.Close()

	_, err := e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`)})
	require.NoError(t, err)
	require.NoError(t, e.Delete(context.Background(), DeleteRequest{Namespace: "ns1", ID: "a"}))

	put := <-sub.Events
	assert.Equal(t, types.EventPut, put.Kind)
	del := <-sub.Events
	assert.Equal(t, types.EventDelete, del.Kind)
}

func TestSnapshotAndRestoreAcrossReopen(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	e, err := Open(cfg)
	require.NoError(t, err)
	_, err = e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{"v":1}`)})
	require.NoError(t, err)

	snapID, err := e.Snapshot()
	require.NoError(t, err)
	require.NoError(t, e.TrimWAL(snapID))
	require.NoError(t, e.Close())

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	obj, err := reopened.Get("ns1", "a", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(obj.Body))
}

func TestRecoveryReplaysWALAfterCrash(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	e, err := Open(cfg)
	require.NoError(t, err)
	_, err = e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{"v":1}`)})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	recovered, err := Open(cfg)
	require.NoError(t, err)
	defer recovered.Close()

	obj, err := recovered.Get("ns1", "a", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(obj.Body))
}

func TestPutCancelledBeforeCommitDiscardsRecord(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Put(ctx, PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, types.ErrCancelled)

	_, err = e.Get("ns1", "a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRecoveryPreservesIdempotencyCommitTS(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	e, err := Open(cfg)
	require.NoError(t, err)
	before := time.Now()
	_, err = e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`), IdempotencyKey: "req-1"})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	recovered, err := Open(cfg)
	require.NoError(t, err)
	defer recovered.Close()

	entries := recovered.idem.All()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].CommitTS.Before(before))

	recovered.idem.Sweep(time.Now())
	entries = recovered.idem.All()
	assert.Len(t, entries, 1, "a just-recovered idempotency entry must not be evicted by the next sweep")
}

func TestTTLPutIsInvisibleBeforeSweep(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Put(context.Background(), PutRequest{Namespace: "ns1", ID: "a", Body: json.RawMessage(`{}`), TTL: time.Millisecond})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = e.Get("ns1", "a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
