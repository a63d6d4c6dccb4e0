package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the first n hex characters of the SHA-256 of data.
// n <= 0 or n > 64 returns the full digest.
func ContentHash(data []byte, n int) string {
	sum := sha256.Sum256(data)
	full := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}
