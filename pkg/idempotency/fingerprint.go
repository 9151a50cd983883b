package idempotency

import (
	"encoding/json"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// canonicalRequest is the subset of a put/delete request that a
// fingerprint is computed over. Field order is fixed and tags are
// sorted so equivalent requests always hash identically regardless of
// map iteration or caller-supplied tag ordering.
type canonicalRequest struct {
	Namespace string          `json:"namespace"`
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
}

// Fingerprint computes a stable xxhash64 over the semantically
// relevant fields of a request, used to detect whether a replayed
// idempotency key carries the same logical request.
func Fingerprint(namespace, reqType, id string, body json.RawMessage, tags []string) (uint64, error) {
	sortedTags := append([]string(nil), tags...)
	sort.Strings(sortedTags)

	b, err := json.Marshal(canonicalRequest{
		Namespace: namespace,
		Type:      reqType,
		ID:        id,
		Body:      body,
		Tags:      sortedTags,
	})
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}
