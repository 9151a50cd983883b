/*
Package snapshot produces and restores self-contained point-in-time
images of engine state: live objects, the lease table, and the
idempotency cache, each written as ndjson alongside a snapshot.meta
file recording the commit_seq bookmark and per-file checksums.

Snapshots are built under a .tmp-<id> directory and promoted into
place with a single os.Rename, so a crash mid-write never leaves a
partially-written snapshot visible to Restore.
*/
package snapshot
