/*
Package wal implements agentstate's write-ahead log: a durable,
segmented, checksummed record stream that is the source of truth for
crash recovery.

# Architecture

	┌──────────────── WAL ────────────────────────────────────┐
	│                                                           │
	│  Append(record) ──► write to active segment (under mu)  │
	│                                           │                │
	│                              background flusher (ticker   │
	│                              or explicit Signal())        │
	│                                           │                │
	│                                   Fdatasync/Sync           │
	│                                           │                │
	│                              notify waiters at synced pos  │
	│                                                           │
	│  manifest.json: segments[], bookmarks{ns:seq}, snapshot_id│
	└───────────────────────────────────────────────────────────┘

# Record format

Each record on disk is:

	uint32 length   (of kind byte + body)
	uint32 checksum (xxhash64 truncated to 32 bits, over body)
	byte   kind     (Put, Delete, LeaseAcquire, LeaseRenew, LeaseRelease)
	[]byte body     (JSON: {namespace, commit_seq, payload})

There is no separate idempotency record kind: a put's or delete's
idempotency key and fingerprint travel inside its payload.

# Segmentation

Segments are named seg-<ordinal>.log, where ordinal is a plain
monotonic counter identifying the segment's position in the append
stream — it carries no relation to any namespace's commit_seq, since
namespaces (including the reserved lease namespace) each keep an
independent counter and a segment interleaves records from all of
them. A new segment is cut when the active one exceeds
Config.SegmentBytes. Each sealed segment records, per namespace, the
commit_seq range it holds; the manifest also tracks the most recent
snapshot's per-namespace bookmarks, so recovery and trim both know the
valid replay range for every namespace independently.

# Durability

Sync mode "data" issues unix.Fdatasync (skips inode metadata); "metadata"
issues a full os.File.Sync(). A failed sync flips the WAL into a
degraded state (via an atomic.Bool) that fails all subsequent appends
with a PersistentStorage error — the log never retries silently.
*/
package wal
