package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/pkg/types"
)

func TestFencingAcrossPreemption(t *testing.T) {
	table := NewTable()
	now := time.Now()

	a, err := table.Acquire("job1", "A", 5*time.Second, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.FencingToken)

	// A's lease expires; B acquires and gets a bumped fencing token.
	b, err := table.Acquire("job1", "B", 5*time.Second, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), b.FencingToken)

	// A's stale token is now fenced out; B's current token is accepted.
	assert.ErrorIs(t, table.CheckFence("job1", a.FencingToken), types.ErrFencedOut)
	assert.NoError(t, table.CheckFence("job1", b.FencingToken))
}

func TestAcquireHeldByLiveOwner(t *testing.T) {
	table := NewTable()
	now := time.Now()

	_, err := table.Acquire("job1", "A", 5*time.Second, now)
	require.NoError(t, err)

	_, err = table.Acquire("job1", "B", 5*time.Second, now.Add(time.Second))
	assert.ErrorIs(t, err, types.ErrLeaseHeld)
}

func TestRenewRequiresOwnerAndToken(t *testing.T) {
	table := NewTable()
	now := time.Now()

	l, err := table.Acquire("job1", "A", 5*time.Second, now)
	require.NoError(t, err)

	_, err = table.Renew("job1", "A", "wrong-token", 5*time.Second, now)
	assert.ErrorIs(t, err, types.ErrLeaseInvalid)

	renewed, err := table.Renew("job1", "A", l.Token, 5*time.Second, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, l.FencingToken, renewed.FencingToken)
}

func TestReleaseThenReleaseAgainIsInvalid(t *testing.T) {
	table := NewTable()
	now := time.Now()

	l, err := table.Acquire("job1", "A", 5*time.Second, now)
	require.NoError(t, err)
	require.NoError(t, table.Release("job1", "A", l.Token))

	assert.ErrorIs(t, table.Release("job1", "A", l.Token), types.ErrLeaseInvalid)
}
