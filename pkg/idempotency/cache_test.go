package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/types"
)

func TestFingerprintStableUnderTagOrder(t *testing.T) {
	f1, err := Fingerprint("ns1", "task", "a", []byte(`{"x":1}`), []string{"b:2", "a:1"})
	require.NoError(t, err)
	f2, err := Fingerprint("ns1", "task", "a", []byte(`{"x":1}`), []string{"a:1", "b:2"})
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestCheckHitAndConflict(t *testing.T) {
	c := New(time.Hour)
	fp, _ := Fingerprint("ns1", "task", "a", []byte(`{}`), nil)

	_, ok, err := c.Check("ns1", "k1", fp)
	require.NoError(t, err)
	assert.False(t, ok)

	c.Record(types.IdempotencyEntry{Key: "k1", Namespace: "ns1", Fingerprint: fp, CommitSeq: 1, CommitTS: time.Now()})

	entry, ok, err := c.Check("ns1", "k1", fp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), entry.CommitSeq)

	otherFP, _ := Fingerprint("ns1", "task", "a", []byte(`{"x":2}`), nil)
	_, _, err = c.Check("ns1", "k1", otherFP)
	assert.ErrorIs(t, err, types.ErrIdempotencyConflict)
}

func TestSweepEvictsOld(t *testing.T) {
	c := New(time.Minute)
	c.Record(types.IdempotencyEntry{Key: "k1", Namespace: "ns1", CommitTS: time.Now().Add(-time.Hour)})
	c.Sweep(time.Now())
	assert.Empty(t, c.All())
}
