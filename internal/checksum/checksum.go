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

// Short returns the first n hex characters of the digest of data.
func Short(data []byte, n int) string {
	s := Sum(data)
	if n <= 0 || n > len(s) {
		return s
	}
	return s[:n]
}
