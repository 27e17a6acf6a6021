package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the hex sha256 digest of an upload's raw bytes.
// It is a cache key only and carries no trust.
type Fingerprint string

// FingerprintOf hashes the raw payload, not the decoded pixels.
func FingerprintOf(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

func (f Fingerprint) String() string { return string(f) }
