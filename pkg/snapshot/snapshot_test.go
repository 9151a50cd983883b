package snapshot

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/types"
)

type fakeSource struct {
	objects []types.Object
	leases  []types.Lease
	idem    []types.IdempotencyEntry
}

func (f fakeSource) SnapshotObjects() ([]types.Object, error)             { return f.objects, nil }
func (f fakeSource) SnapshotLeases() ([]types.Lease, error)               { return f.leases, nil }
func (f fakeSource) SnapshotIdempotency() ([]types.IdempotencyEntry, error) { return f.idem, nil }

type fakeSink struct {
	objects []types.Object
	leases  []types.Lease
	idem    []types.IdempotencyEntry
}

func (f *fakeSink) RestoreObject(o types.Object) error             { f.objects = append(f.objects, o); return nil }
func (f *fakeSink) RestoreLease(l types.Lease) error                { f.leases = append(f.leases, l); return nil }
func (f *fakeSink) RestoreIdempotency(e types.IdempotencyEntry) error { f.idem = append(f.idem, e); return nil }

func TestCreateAndRestore(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	src := fakeSource{
		objects: []types.Object{
			{Namespace: "ns1", ID: "a", CommitSeq: 1, Body: json.RawMessage(`{"x":1}`)},
			{Namespace: "ns1", ID: "b", CommitSeq: 2, Body: json.RawMessage(`{"x":2}`)},
		},
		leases: []types.Lease{{Name: "job1", Owner: "w1", FencingToken: 1}},
		idem:   []types.IdempotencyEntry{{Key: "k1", Namespace: "ns1", CommitSeq: 1}},
	}
	require.NoError(t, store.Create("snap-1", map[string]uint64{"ns1": 2}, src))

	sink := &fakeSink{}
	bookmarks, report, err := store.Restore("snap-1", sink)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bookmarks["ns1"])
	assert.True(t, report.ChecksumOK)
	assert.Equal(t, 2, report.PerNamespaceCounts["ns1"])
	assert.Len(t, sink.objects, 2)
	assert.Len(t, sink.leases, 1)
	assert.Len(t, sink.idem, 1)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "snap-1", latest)
}
