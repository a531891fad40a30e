package identifier

import (
	"crypto/rand"
	"encoding/hex"
)

// Length of generated identifiers in hex characters (16 random bytes).
const Length = 32

// New returns a fixed-length lowercase hex identifier drawn from
// crypto/rand. With 128 bits of entropy collisions are practically
// impossible; the store layer still retries on a duplicate-key error
// rather than relying on that.
func New() string {
	b := make([]byte, Length/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process has no usable entropy
		// source; nothing sensible can continue from here.
		panic("identifier: rand.Read failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
