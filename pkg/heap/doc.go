/*
Package heap implements agentstate's per-namespace MVCC object store:
an append-only version chain per id, a tag index for candidate
selection, and time-travel reads by commit_seq.

# Architecture

Each namespace owns a *namespaceState held behind an
atomic.Pointer, so readers never block on writers and never observe a
torn update:

	namespaceState{
	    byID:      immutable.Map[string, *versionChain]
	    tagIndex:  immutable.Map[string, *immutable.Map[string, struct{}]]
	    latestSeq: uint64
	}

Apply (invoked only by the commit coordinator, strictly in commit_seq
order per namespace) builds a new namespaceState from the old one under
a per-namespace mutex, then swaps the pointer. Get and Query read the
pointer without locking, so they always see one consistent, immutable
snapshot even while a write is in flight.

Only the newest 32 versions of each id are kept in memory; older
versions are dropped and nothing reloads them, so a time-travel read at
a commit_seq older than the retained tail returns NotFound.
*/
package heap
