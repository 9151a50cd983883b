package lease

import (
	"sync"
	"time"

	"github.com/agentstate/agentstate/pkg/idgen"
	"github.com/agentstate/agentstate/pkg/types"
)

// Table manages lease state and per-name fencing counters.
type Table struct {
	mu              sync.RWMutex
	leases          map[string]*types.Lease
	fencingCounters map[string]uint64
}

func NewTable() *Table {
	return &Table{
		leases:          make(map[string]*types.Lease),
		fencingCounters: make(map[string]uint64),
	}
}

// Acquire grants name to owner for ttl if it is unheld, expired as of
// now, or currently held by owner itself. A fresh acquisition always bumps the name's fencing counter,
// even if the same owner reacquires after its own lease expired, so a
// stale holder's in-flight writes are fenced out. If the lease is
// currently held by a live (unexpired) different owner, Acquire fails
// with LeaseHeld.
func (t *Table) Acquire(name, owner string, ttl time.Duration, now time.Time) (types.Lease, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.leases[name]; ok && !existing.Expired(now) && existing.Owner != owner {
		return types.Lease{}, types.New("lease.Acquire", types.KindLeaseHeld, nil)
	}

	token, err := idgen.Token()
	if err != nil {
		return types.Lease{}, types.New("lease.Acquire", types.KindPersistentStorage, err)
	}

	t.fencingCounters[name]++
	l := &types.Lease{
		Name:         name,
		Owner:        owner,
		Token:        token,
		FencingToken: t.fencingCounters[name],
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
	t.leases[name] = l
	return *l, nil
}

// Renew extends an existing lease's expiry without changing its
// fencing token, provided owner and token match the current holder and
// the lease has not expired.
func (t *Table) Renew(name, owner, token string, ttl time.Duration, now time.Time) (types.Lease, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.leases[name]
	if !ok || l.Owner != owner || l.Token != token || l.Expired(now) {
		return types.Lease{}, types.New("lease.Renew", types.KindLeaseInvalid, nil)
	}
	l.ExpiresAt = now.Add(ttl)
	return *l, nil
}

// Release clears a lease held by owner/token. Releasing an
// already-cleared or mismatched lease is LeaseInvalid — callers should
// only treat this as success when they believe they hold the lease.
func (t *Table) Release(name, owner, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.leases[name]
	if !ok || l.Owner != owner || l.Token != token {
		return types.New("lease.Release", types.KindLeaseInvalid, nil)
	}
	delete(t.leases, name)
	return nil
}

// CheckFence reports whether fencingToken is still valid (>= the
// counter currently recorded for name). A mutation carrying a stale
// token must be rejected with FencedOut.
func (t *Table) CheckFence(name string, fencingToken uint64) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fencingToken < t.fencingCounters[name] {
		return types.New("lease.CheckFence", types.KindFencedOut, nil)
	}
	return nil
}

// Get returns the current lease state for name, if any.
func (t *Table) Get(name string) (types.Lease, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.leases[name]
	if !ok {
		return types.Lease{}, false
	}
	return *l, true
}

// All returns every current lease, used by pkg/snapshot.
func (t *Table) All() []types.Lease {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Lease, 0, len(t.leases))
	for _, l := range t.leases {
		out = append(out, *l)
	}
	return out
}

// Restore reinstates a previously snapshotted or WAL-recovered lease,
// advancing the name's fencing counter if needed so future Acquire
// calls never reissue a token already seen.
func (t *Table) Restore(l types.Lease) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := l
	t.leases[l.Name] = &cp
	if l.FencingToken > t.fencingCounters[l.Name] {
		t.fencingCounters[l.Name] = l.FencingToken
	}
}
