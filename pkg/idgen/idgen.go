/*
Package idgen generates identifiers used throughout agentstate: object
ids when a caller omits one, lease tokens, and snapshot ids. Object and
snapshot ids are a time-sortable prefix (so lexicographic order
approximates creation order) followed by random bytes to prevent
collisions across concurrent callers. Tokens have no ordering
requirement, so they're plain UUIDs.
*/
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New generates a time-prefixed random identifier with the given byte
// count of randomness (hex-encoded, so the random suffix is 2*n
// characters).
func New(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("idgen: failed to read random bytes: %w", err)
	}
	return fmt.Sprintf("%013d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf)), nil
}

// Token generates an opaque lease/idempotency token. Unlike New it
// carries no time prefix and no ordering guarantee, since tokens are
// only ever compared for equality.
func Token() (string, error) {
	return uuid.NewString(), nil
}
