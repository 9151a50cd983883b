package heap

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/types"
)

func TestGetLatestAndTimeTravel(t *testing.T) {
	h := New()
	ns := "agents/w1"

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 1, CommitTS: time.Now(), Body: json.RawMessage(`{"v":1}`)})
	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 2, CommitTS: time.Now(), Body: json.RawMessage(`{"v":2}`)})

	latest, err := h.Get(ns, "a", 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(latest.Body))

	old, err := h.Get(ns, "a", 1)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(old.Body))
}

func TestDeleteThenGetNotFound(t *testing.T) {
	h := New()
	ns := "agents/w1"

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 1, CommitTS: time.Now(), Body: json.RawMessage(`{}`)})
	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 2, CommitTS: time.Now(), Tombstone: true})

	_, err := h.Get(ns, "a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestTagIndexConsistency(t *testing.T) {
	h := New()
	ns := "agents/w1"

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 1, CommitTS: time.Now(), Tags: []string{"kind:task"}, Body: json.RawMessage(`{}`)})
	h.Apply(types.Object{Namespace: ns, ID: "b", CommitSeq: 2, CommitTS: time.Now(), Tags: []string{"kind:task"}, Body: json.RawMessage(`{}`)})

	res, err := h.Run(ns, Query{TagFilter: []string{"kind:task"}})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 3, CommitTS: time.Now(), Tombstone: true})

	res, err = h.Run(ns, Query{TagFilter: []string{"kind:task"}})
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
}

func TestQueryJSONPathAndProjection(t *testing.T) {
	h := New()
	ns := "agents/w1"

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 1, CommitTS: time.Now(), Body: json.RawMessage(`{"state":"running","extra":"x"}`)})
	h.Apply(types.Object{Namespace: ns, ID: "b", CommitSeq: 2, CommitTS: time.Now(), Body: json.RawMessage(`{"state":"done","extra":"y"}`)})

	res, err := h.Run(ns, Query{JSONPath: "$.state", JSONValue: "running", Projection: []string{"state"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.JSONEq(t, `{"state":"running"}`, string(res[0].Body))
}

func TestGetHidesExpiredObjectBeforeSweep(t *testing.T) {
	h := New()
	ns := "agents/w1"
	past := time.Now().Add(-time.Hour)

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 1, CommitTS: time.Now().Add(-2 * time.Hour), ExpiresAt: past, Body: json.RawMessage(`{}`)})

	_, err := h.Get(ns, "a", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestTTLSweep(t *testing.T) {
	h := New()
	ns := "agents/w1"
	past := time.Now().Add(-time.Hour)

	h.Apply(types.Object{Namespace: ns, ID: "a", CommitSeq: 1, CommitTS: time.Now(), ExpiresAt: past, Body: json.RawMessage(`{}`)})

	candidates := h.Sweep(ns, time.Now().Unix())
	require.Len(t, candidates, 1)
	assert.Equal(t, "a", candidates[0].ID)
}
