package watch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/types"
)

func TestPublishAndSubscribeLiveTail(t *testing.T) {
	h := NewHub(16, nil)
	sub := h.Subscribe("ns1", 0, 4)
	defer sub.Close()

	h.Publish(types.Event{Kind: types.EventPut, Namespace: "ns1", ID: "a", CommitSeq: 1})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, uint64(1), ev.CommitSeq)
	default:
		t.Fatal("expected event, got none")
	}
}

func TestSubscribeResumeFromRing(t *testing.T) {
	h := NewHub(16, nil)
	for i := uint64(1); i <= 3; i++ {
		h.Publish(types.Event{Kind: types.EventPut, Namespace: "ns1", ID: "a", CommitSeq: i})
	}

	sub := h.Subscribe("ns1", 1, 8)
	defer sub.Close()

	var seen []uint64
	for i := 0; i < 2; i++ {
		seen = append(seen, (<-sub.Events).CommitSeq)
	}
	assert.Equal(t, []uint64{2, 3}, seen)
}

func TestOverflowWhenBufferFull(t *testing.T) {
	h := NewHub(16, nil)
	// A single-slot buffer: the first publish fills it, the second
	// finds it full and drops the subscriber. The best-effort Overflow
	// notification may or may not land in the already-full channel;
	// the closed Done channel is the authoritative drop signal.
	sub := h.Subscribe("ns1", 0, 1)

	h.Publish(types.Event{Kind: types.EventPut, Namespace: "ns1", CommitSeq: 1})
	h.Publish(types.Event{Kind: types.EventPut, Namespace: "ns1", CommitSeq: 2})

	ev := <-sub.Events
	assert.Equal(t, uint64(1), ev.CommitSeq)

	_, open := <-sub.Done
	assert.False(t, open)
	assert.Equal(t, 0, h.SubscriberCount("ns1"))
}

func TestCloseDecrementsSubscriberCount(t *testing.T) {
	h := NewHub(16, nil)
	sub := h.Subscribe("ns1", 0, 4)
	require.Equal(t, 1, h.SubscriberCount("ns1"))

	sub.Close()
	assert.Equal(t, 0, h.SubscriberCount("ns1"))

	// Closing twice must not panic or double-decrement.
	sub.Close()
	assert.Equal(t, 0, h.SubscriberCount("ns1"))
}

func TestSubscribeOverflowWhenHistoryUnavailable(t *testing.T) {
	h := NewHub(16, nil)
	sub := h.Subscribe("ns1", 100, 4)

	ev := <-sub.Events
	assert.Equal(t, types.EventOverflow, ev.Kind)
	assert.Equal(t, uint64(100), ev.LastCommit)
	assert.Equal(t, 0, h.SubscriberCount("ns1"))
}
