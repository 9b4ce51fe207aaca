// Package hash holds the hashing helpers behind cache keys.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256 returns the hex-encoded SHA256 digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256String hashes a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// Fingerprint hashes an ordered list of parts. Parts are joined with
// an unprintable separator so ("ab","c") and ("a","bc") never collide.
func Fingerprint(parts ...string) string {
	return SHA256String(strings.Join(parts, "\x1f"))
}
