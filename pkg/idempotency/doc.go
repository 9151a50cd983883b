/*
Package idempotency caches the outcome of a caller-supplied
idempotency key against a request fingerprint, so at-least-once
clients can retry a put or delete safely: replaying the same key with
the same fingerprint returns the original response without producing a
new commit_seq, while reusing the key with a different fingerprint
fails with IdempotencyConflict.

The in-memory cache is a bounded LRU (golang-lru/v2); entries are also
written to the WAL and captured in snapshots so the guarantee survives
restart, up to the configured retention window.
*/
package idempotency
