package wal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/types"
)

func TestAppendAndRecover(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentBytes: 1 << 20, FlushInterval: time.Millisecond})
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"body": "hello"})
	for i := uint64(1); i <= 5; i++ {
		err := w.Append(Record{Kind: KindPut, Namespace: "ns1", CommitSeq: i, Payload: payload})
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	var seen []uint64
	manifest, err := Recover(dir, func(rec Record) error {
		seen = append(seen, rec.CommitSeq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
	assert.NotEmpty(t, manifest.Segments)
}

func TestSegmentRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentBytes: 64, FlushInterval: time.Millisecond})
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"body": "a reasonably sized payload to force rotation"})
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, w.Append(Record{Kind: KindPut, Namespace: "ns1", CommitSeq: i, Payload: payload}))
	}
	m := w.Manifest()
	assert.Greater(t, len(m.Segments), 1)
	require.NoError(t, w.Close())
}

func TestTrim(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentBytes: 64, FlushInterval: time.Millisecond})
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"body": "payload big enough to rotate segments quickly"})
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, w.Append(Record{Kind: KindPut, Namespace: "ns1", CommitSeq: i, Payload: payload}))
	}
	before := len(w.Manifest().Segments)
	require.NoError(t, w.Trim(map[string]uint64{"ns1": 5}, "snap-1"))
	after := w.Manifest()
	assert.Less(t, len(after.Segments), before)
	assert.Equal(t, uint64(5), after.Bookmarks["ns1"])
	assert.Equal(t, "snap-1", after.SnapshotID)
	require.NoError(t, w.Close())
}

func TestTrimKeepsSegmentWithUncoveredNamespace(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentBytes: 256, FlushInterval: time.Millisecond})
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]string{"body": "payload big enough to rotate segments quickly"})
	// ns1 and ns2 interleave with independent commit_seq counters, so a
	// sealed segment ends up holding records from both.
	for i := uint64(1); i <= 10; i++ {
		require.NoError(t, w.Append(Record{Kind: KindPut, Namespace: "ns1", CommitSeq: i, Payload: payload}))
		require.NoError(t, w.Append(Record{Kind: KindPut, Namespace: "ns2", CommitSeq: i, Payload: payload}))
	}

	// A snapshot bookmark that covers ns1 fully but ns2 not at all must
	// not remove a segment that still holds ns2's uncovered records.
	require.NoError(t, w.Trim(map[string]uint64{"ns1": 10}, "snap-1"))

	var seen []string
	_, err = Recover(dir, func(rec Record) error {
		seen = append(seen, rec.Namespace)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, seen, "ns2", "ns2 records must still be replayable after a trim that only covers ns1")
	require.NoError(t, w.Close())
}

func TestDegradedAfterSyncFailure(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentBytes: 1 << 20, FlushInterval: time.Millisecond})
	require.NoError(t, err)
	assert.False(t, w.Degraded())

	// flushOnce reports a failed sync through markDegraded; from then on
	// every append is rejected.
	w.markDegraded(errors.New("injected sync failure"))
	assert.True(t, w.Degraded())
	payload, _ := json.Marshal(map[string]string{"body": "x"})
	err = w.Append(Record{Kind: KindPut, Namespace: "ns1", CommitSeq: 1, Payload: payload})
	assert.ErrorIs(t, err, types.ErrPersistentStorage)
	require.NoError(t, w.Close())
}
