// Package sha256 implements leads.Hasher for snapshot content addressing.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher digests page bodies with SHA-256. Snapshot object names embed the
// digest so re-fetching identical content overwrites rather than duplicates.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
