package engine

import (
	"encoding/json"
	"time"
)

// leaseNamespace is the reserved WAL/sequence namespace lease
// mutations are recorded under. Leases are not namespace-scoped
// objects, but every commit still needs a namespace key to serialize
// on and a monotonic sequence to assign, so leases share the same
// machinery as object namespaces under one fixed name.
const leaseNamespace = "_leases"

// putPayload is the WAL payload for a put commit. CommitTS is decided
// by the engine before staging and written here (rather than stamped
// at apply time) so that crash recovery reconstructs the exact
// original commit timestamp instead of the time recovery happened to
// run.
type putPayload struct {
	ID             string          `json:"id"`
	Body           json.RawMessage `json:"body"`
	Tags           []string        `json:"tags,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at,omitempty"`
	CommitTS       time.Time       `json:"commit_ts"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Fingerprint    uint64          `json:"fingerprint,omitempty"`
}

// deletePayload is the WAL payload for a delete commit.
type deletePayload struct {
	ID             string    `json:"id"`
	CommitTS       time.Time `json:"commit_ts"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Fingerprint    uint64    `json:"fingerprint,omitempty"`
}

// leasePayload is the WAL payload shared by lease acquire/renew/release
// commits; not every field applies to every kind (e.g. release has no
// TTL). ExpiresAt is recorded directly (rather than a TTL offset) so
// recovery restores the same absolute expiry the original commit
// granted, independent of when recovery itself runs.
type leasePayload struct {
	Name           string    `json:"name"`
	Owner          string    `json:"owner"`
	Token          string    `json:"token,omitempty"`
	FencingToken   uint64    `json:"fencing_token,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
	CommitTS       time.Time `json:"commit_ts"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Fingerprint    uint64    `json:"fingerprint,omitempty"`
}
