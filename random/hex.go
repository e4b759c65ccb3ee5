// Package random produces the secrets the app falls back to when none are
// configured.
package random

import (
	"crypto/rand"
	"encoding/hex"
)

// Key returns n random bytes, suitable as a cookie or csrf key.
func Key(n int) []byte {
	key := make([]byte, n)

	// crypto/rand.Read never returns an error since Go 1.24
	_, _ = rand.Read(key)

	return key
}

// Hex returns n random bytes hex encoded, so the result is 2n characters long.
func Hex(n int) string {
	return hex.EncodeToString(Key(n))
}
