package heap

// ExpiredCandidate is a live object whose TTL has lapsed, found by
// Sweep. The caller (pkg/engine) turns each candidate into a normal
// delete commit through the usual coordinator path — the sweeper only
// discovers expiry, it never mutates the heap directly, since
// expiry is authoritative at read time regardless of whether a
// sweeper has run.
type ExpiredCandidate struct {
	Namespace string
	ID        string
}

// Sweep scans namespace for live objects whose ExpiresAt has passed as
// of now (a Unix time in seconds, matching the engine's wall clock
// source so tests can pass a fixed value).
func (h *Heap) Sweep(namespace string, nowUnix int64) []ExpiredCandidate {
	state := h.statePointer(namespace).Load()
	var out []ExpiredCandidate
	itr := state.byID.Iterator()
	for !itr.Done() {
		id, chain, _ := itr.Next()
		obj, ok := chain.latest()
		if !ok || obj.Tombstone || obj.ExpiresAt.IsZero() {
			continue
		}
		if obj.ExpiresAt.Unix() < nowUnix {
			out = append(out, ExpiredCandidate{Namespace: namespace, ID: id})
		}
	}
	return out
}
