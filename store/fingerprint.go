package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the deduplication key for a memory fact.
//
// It is the SHA-256 hex digest of the fact type and the normalized content
// joined with "|". Content is normalized by trimming surrounding whitespace
// and lower-casing, so "Likes Tea " and "likes tea" collide on purpose.
//
// The algorithm is part of the durable storage contract: every memory row
// already written carries a fingerprint computed this way, so changing the
// hash or the normalization requires a data migration.
func Fingerprint(memoryType, content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(memoryType + "|" + normalized))
	return hex.EncodeToString(sum[:])
}
