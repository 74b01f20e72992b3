package core

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// fingerprintLen is the number of hex characters kept from the hash. Short
// enough to scan in a directory listing, long enough that collisions are not
// a practical concern. A genuine collision is not detected: capture silently
// overwrites and replay serves the colliding fixture.
const fingerprintLen = 12

// Fingerprint reduces a serialized argument string to a compact,
// filename-safe identity: the first 12 hex characters of its SHA-256 sum.
func Fingerprint(serialized string) string {
	sum := sha256.Sum256([]byte(serialized))

	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// FixturePath resolves the file a fixture lives at. Identical arguments
// (under the serializer's notion of equality) always resolve to the same
// path.
func FixturePath(dir, prefix, fingerprint string) string {
	return filepath.Join(dir, prefix+"-"+fingerprint+".json")
}
