package idempotency

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentstate/agentstate/pkg/types"
)

const defaultCapacity = 8192

// Cache maps idempotency keys (scoped by namespace) to the recorded
// outcome of the request that first used them.
type Cache struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, types.IdempotencyEntry]
	retention time.Duration
}

func New(retention time.Duration) *Cache {
	l, _ := lru.New[string, types.IdempotencyEntry](defaultCapacity)
	return &Cache{lru: l, retention: retention}
}

func cacheKey(namespace, key string) string { return namespace + "\x00" + key }

// Check looks up (namespace, key). If absent, ok is false and the
// caller should proceed with a fresh commit. If present with a
// matching fingerprint, the cached entry is returned so the caller can
// replay its response without committing again. If present with a
// different fingerprint, err is IdempotencyConflict.
func (c *Cache) Check(namespace, key string, fingerprint uint64) (entry types.IdempotencyEntry, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, found := c.lru.Get(cacheKey(namespace, key))
	if !found {
		return types.IdempotencyEntry{}, false, nil
	}
	if existing.Fingerprint != fingerprint {
		return types.IdempotencyEntry{}, false, types.New("idempotency.Check", types.KindIdempotencyConflict, nil)
	}
	return existing, true, nil
}

// Record stores the outcome of a freshly committed request under key.
func (c *Cache) Record(entry types.IdempotencyEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(cacheKey(entry.Namespace, entry.Key), entry)
}

// Sweep evicts entries older than the configured retention window as
// of now. Persisted copies in the WAL/snapshot are pruned on the next
// trim/snapshot cycle; Sweep only bounds the in-memory working set.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.retention)
	for _, k := range c.lru.Keys() {
		v, ok := c.lru.Peek(k)
		if ok && v.CommitTS.Before(cutoff) {
			c.lru.Remove(k)
		}
	}
}

// All returns every cached entry, used by pkg/snapshot to capture a
// point-in-time image.
func (c *Cache) All() []types.IdempotencyEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.IdempotencyEntry, 0, c.lru.Len())
	for _, k := range c.lru.Keys() {
		if v, ok := c.lru.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}

// Restore reinserts a previously snapshotted or WAL-recovered entry.
func (c *Cache) Restore(entry types.IdempotencyEntry) {
	c.Record(entry)
}
