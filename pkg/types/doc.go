/*
Package types defines the core data structures shared across agentstate.

This package contains all fundamental types that represent agentstate's
domain model, including objects, lease state, watch events, and
idempotency entries. These types are used by every other package for
state management, persistence, and the external engine API.

# Architecture

The types package is the foundation of agentstate's data model. It defines:

  - Object versions and tombstones
  - Lease state and fencing tokens
  - Watch events and resume tokens
  - Idempotency cache entries
  - The error taxonomy shared by every component

All types are designed to be:
  - Serializable (JSON for WAL records and snapshot files)
  - Immutable once committed (new versions, not in-place mutation)
  - Self-documenting (clear field names and comments)

# Core Types

The main types in this package are:

Objects:
  - Object: A single committed version of a namespaced item
  - ObjectKey: Namespace + ID addressing an object's version chain

Leases:
  - Lease: Named mutual-exclusion slot with owner, token, and expiry

Watch:
  - Event: A single change-feed entry (put, delete, or overflow)
  - EventKind: Put, Delete, or Overflow

Idempotency:
  - IdempotencyEntry: Cached response keyed by request fingerprint

# Usage

Creating an Object:

	obj := &types.Object{
		Namespace: "agents/worker-7",
		ID:        "task-42",
		CommitSeq: 101,
		CommitTS:  time.Now(),
		Body:      json.RawMessage(`{"state":"running"}`),
		Tags:      []string{"kind:task"},
	}

Creating an Event:

	ev := &types.Event{
		Kind:      types.EventPut,
		Namespace: obj.Namespace,
		ID:        obj.ID,
		CommitSeq: obj.CommitSeq,
	}

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type EventKind string
	  const (
	      EventPut    EventKind = "put"
	      EventDelete EventKind = "delete"
	  )

Optional Fields:

	Optional fields use zero values rather than pointers:
	  - Object.ExpiresAt zero value: no TTL
	  - Event.LastCommit and Event.ReconnectAfter: set only on Overflow events

# Integration Points

This package integrates with:

  - pkg/heap: persists Object version chains and serves reads
  - pkg/wal: encodes mutations of these types as log records
  - pkg/snapshot: serializes these types to ndjson snapshot files
  - pkg/lease: manages Lease lifecycle and fencing tokens
  - pkg/watch: publishes Event values to subscribers
  - pkg/idempotency: caches IdempotencyEntry values
  - pkg/engine: the commit coordinator that produces all of the above

# Error Handling

Errors returned across package boundaries are *Error values carrying a
Kind from the fixed taxonomy in errors.go. Callers should use errors.Is
against the sentinel values (ErrNotFound, ErrFencedOut, ...) rather than
comparing Kind directly; Error implements Is so wrapped errors still
match.

# Thread Safety

All types in this package are plain value/struct types with no internal
synchronization. Callers (pkg/heap, pkg/lease, pkg/watch) are
responsible for synchronizing access to shared instances.
*/
package types
