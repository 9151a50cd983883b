/*
Package engine is agentstate's commit coordinator: the facade that
ties the WAL, object heap, lease table, idempotency cache, and watch
hub into a single consistent API, serializing commits per namespace.

# Commit protocol

Every mutation goes through commit, which runs the steps the design
calls for in order:

 1. Validate the request shape.
 2. Check idempotency (hit with matching fingerprint short-circuits;
    hit with a different fingerprint fails IdempotencyConflict).
 3. Check fencing (a lease token, if present, must be current).
 4. Assign commit_seq = latest_seq(ns) + 1.
 5. Stage a WAL record and register a wait on its sync.
 6. Await sync.
 7. On success: apply to heap/lease/idempotency, publish to the watch
    hub, advance latest_seq, return the response.
 8. On failure: surface PersistentStorage; never apply in memory.

Because application to memory only happens after WAL sync succeeds, a
crash between steps 5 and 7 is always safely repaired at recovery: the
WAL either has the record (recovery re-applies it) or does not (the
caller already received failure and knows to retry).

# Concurrency

One mutex per namespace serializes commits to that namespace; commits
to different namespaces proceed fully in parallel. A failed WAL sync
flips the coordinator into a degraded state (mirroring the WAL's own
degraded flag) that rejects new mutations until restarted.
*/
package engine
