package heap

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/immutable"

	"github.com/agentstate/agentstate/pkg/types"
)

// maxChainDepth bounds how many trailing versions of one id are kept
// in memory; older versions are dropped since time-travel reads in
// practice target recent commit_seq values.
const maxChainDepth = 32

// versionChain is the small in-memory tail of an id's version history,
// newest last.
type versionChain struct {
	versions []types.Object
}

func (c *versionChain) append(o types.Object) *versionChain {
	versions := append(append([]types.Object(nil), c.versions...), o)
	if len(versions) > maxChainDepth {
		versions = versions[len(versions)-maxChainDepth:]
	}
	return &versionChain{versions: versions}
}

// visibleAt returns the version with the greatest commit_seq <= atSeq
// that is not a tombstone and not TTL-expired as of now. Expiry is
// evaluated against the current wall clock, not the version's own
// commit time: a TTL put becomes invisible the instant it passes its
// ExpiresAt, independent of when pkg/heap's sweeper gets around to
// turning it into a real tombstone.
func (c *versionChain) visibleAt(atSeq uint64, now time.Time) (types.Object, bool) {
	for i := len(c.versions) - 1; i >= 0; i-- {
		v := c.versions[i]
		if v.CommitSeq > atSeq {
			continue
		}
		if v.Tombstone {
			return types.Object{}, false
		}
		if !v.Alive(now) {
			return types.Object{}, false
		}
		return v, true
	}
	return types.Object{}, false
}

func (c *versionChain) latest() (types.Object, bool) {
	if len(c.versions) == 0 {
		return types.Object{}, false
	}
	return c.versions[len(c.versions)-1], true
}

type namespaceState struct {
	byID      *immutable.Map[string, *versionChain]
	tagIndex  *immutable.Map[string, *immutable.Map[string, struct{}]]
	latestSeq uint64
}

func newNamespaceState() *namespaceState {
	return &namespaceState{
		byID:     immutable.NewMap[string, *versionChain](nil),
		tagIndex: immutable.NewMap[string, *immutable.Map[string, struct{}]](nil),
	}
}

// Heap stores the MVCC object version chains for every namespace.
type Heap struct {
	mu         sync.Map // namespace -> *sync.Mutex, serializes Apply per namespace
	namespaces sync.Map // namespace -> atomic.Pointer[namespaceState]
}

func New() *Heap {
	return &Heap{}
}

func (h *Heap) statePointer(namespace string) *atomic.Pointer[namespaceState] {
	v, _ := h.namespaces.LoadOrStore(namespace, &atomic.Pointer[namespaceState]{})
	p := v.(*atomic.Pointer[namespaceState])
	if p.Load() == nil {
		p.CompareAndSwap(nil, newNamespaceState())
	}
	return p
}

func (h *Heap) namespaceMutex(namespace string) *sync.Mutex {
	v, _ := h.mu.LoadOrStore(namespace, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Apply commits a new object version to its namespace's version chain
// and tag index. Callers (the commit coordinator) must invoke Apply in
// strictly increasing commit_seq order per namespace.
func (h *Heap) Apply(obj types.Object) {
	mu := h.namespaceMutex(obj.Namespace)
	mu.Lock()
	defer mu.Unlock()

	ptr := h.statePointer(obj.Namespace)
	old := ptr.Load()

	chain, _ := old.byID.Get(obj.ID)
	if chain == nil {
		chain = &versionChain{}
	}
	if prevLive, ok := chain.latest(); ok && !prevLive.Tombstone {
		old = removeTagEdges(old, obj.ID, prevLive.Tags)
	}
	newChain := chain.append(obj)

	newState := &namespaceState{
		byID:      old.byID.Set(obj.ID, newChain),
		tagIndex:  old.tagIndex,
		latestSeq: max(old.latestSeq, obj.CommitSeq),
	}
	if !obj.Tombstone {
		newState.tagIndex = addTagEdges(newState.tagIndex, obj.ID, obj.Tags)
	}

	ptr.Store(newState)
}

func tagEdgeKey(tag string) string { return tag }

func addTagEdges(idx *immutable.Map[string, *immutable.Map[string, struct{}]], id string, tags []string) *immutable.Map[string, *immutable.Map[string, struct{}]] {
	for _, tag := range tags {
		set, _ := idx.Get(tagEdgeKey(tag))
		if set == nil {
			set = immutable.NewMap[string, struct{}](nil)
		}
		idx = idx.Set(tagEdgeKey(tag), set.Set(id, struct{}{}))
	}
	return idx
}

func removeTagEdges(state *namespaceState, id string, tags []string) *namespaceState {
	idx := state.tagIndex
	for _, tag := range tags {
		set, ok := idx.Get(tagEdgeKey(tag))
		if !ok {
			continue
		}
		idx = idx.Set(tagEdgeKey(tag), set.Delete(id))
	}
	return &namespaceState{byID: state.byID, tagIndex: idx, latestSeq: state.latestSeq}
}

// Get returns the visible version of (namespace, id) as of atSeq (or
// the namespace's latest commit_seq when atSeq is zero).
func (h *Heap) Get(namespace, id string, atSeq uint64) (types.Object, error) {
	ptr := h.statePointer(namespace)
	state := ptr.Load()
	if atSeq == 0 {
		atSeq = state.latestSeq
	}
	chain, ok := state.byID.Get(id)
	if !ok {
		return types.Object{}, types.New("heap.Get", types.KindNotFound, nil)
	}
	v, ok := chain.visibleAt(atSeq, time.Now())
	if !ok {
		return types.Object{}, types.New("heap.Get", types.KindNotFound, nil)
	}
	return v, nil
}

// LatestSeq returns the highest commit_seq applied to namespace.
func (h *Heap) LatestSeq(namespace string) uint64 {
	return h.statePointer(namespace).Load().latestSeq
}

// candidateIDs returns the ids live under every {k:v} pair in filter,
// intersected. A nil/empty filter matches every id known to the
// namespace (the caller then filters by liveness during Query).
func (state *namespaceState) candidateIDs(filter []string) map[string]struct{} {
	if len(filter) == 0 {
		out := map[string]struct{}{}
		itr := state.byID.Iterator()
		for !itr.Done() {
			id, _, _ := itr.Next()
			out[id] = struct{}{}
		}
		return out
	}

	var result map[string]struct{}
	for i, tag := range filter {
		set, ok := state.tagIndex.Get(tagEdgeKey(tag))
		if !ok {
			return map[string]struct{}{}
		}
		if i == 0 {
			result = map[string]struct{}{}
			itr := set.Iterator()
			for !itr.Done() {
				id, _, _ := itr.Next()
				result[id] = struct{}{}
			}
			continue
		}
		next := map[string]struct{}{}
		itr := set.Iterator()
		for !itr.Done() {
			id, _, _ := itr.Next()
			if _, ok := result[id]; ok {
				next[id] = struct{}{}
			}
		}
		result = next
	}
	return result
}

// Namespaces returns every namespace the heap currently holds state
// for, in no particular order.
func (h *Heap) Namespaces() []string {
	var out []string
	h.namespaces.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}

// LiveObjects returns the latest non-tombstone version of every id in
// namespace, used by pkg/snapshot to capture a point-in-time image.
// TTL-expired versions not yet swept are included; reads still hide
// them.
func (h *Heap) LiveObjects(namespace string) []types.Object {
	state := h.statePointer(namespace).Load()
	var out []types.Object
	itr := state.byID.Iterator()
	for !itr.Done() {
		_, chain, _ := itr.Next()
		if v, ok := chain.latest(); ok && !v.Tombstone {
			out = append(out, v)
		}
	}
	return out
}

// Restore re-applies a previously snapshotted object version through
// Apply. In a freshly restored namespace there is no prior version, so
// Apply's tag-edge removal finds nothing to remove.
func (h *Heap) Restore(obj types.Object) {
	h.Apply(obj)
}
