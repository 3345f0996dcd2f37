package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey returns the hex SHA-256 digest of a raw API key. The same digest
// is computed at issuance and at validation so stored and presented keys
// compare by digest equality without the raw key ever being persisted.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
