// Package sha256 derives stable cache keys from arbitrary strings.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key joins parts with ":" and returns the hex SHA-256 digest.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}
