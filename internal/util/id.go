package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier, optionally namespaced as "prefix_hex".
func NewID(prefix string) string {
	id := NewToken(16)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewToken returns n random bytes hex-encoded. Used for verification,
// password-reset, and refresh tokens where the value itself is the secret.
func NewToken(n int) string {
	raw := make([]byte, n)
	_, _ = rand.Read(raw)
	return hex.EncodeToString(raw)
}
