// Package dedup derives the deterministic keys that make log imports
// idempotent at the record level.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key computes the dedup key for one log line: a SHA-256 hex digest over the
// owning client, the line timestamp, the normalized path and the raw user
// agent. Two physically identical lines for the same client always hash to
// the same key; the path is normalized so `/a` and `/a/` collide.
func Key(clientID uuid.UUID, ts time.Time, path, userAgent string) string {
	h := sha256.New()
	h.Write(clientID[:])
	h.Write([]byte{0})
	h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizePath(path)))
	h.Write([]byte{0})
	h.Write([]byte(userAgent))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePath strips a trailing slash (except for the root path) so that
// dedup keys and orphan-set comparisons agree on one canonical form.
func NormalizePath(path string) string {
	if len(path) > 1 {
		return strings.TrimRight(path, "/")
	}
	return path
}
