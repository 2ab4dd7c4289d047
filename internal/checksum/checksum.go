// Package checksum computes the content digests used to detect changed documents.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Changed reports whether data no longer matches a previously stored digest.
// An empty stored digest always counts as changed.
func Changed(stored string, data []byte) bool {
	return stored == "" || stored != Sum(data)
}
