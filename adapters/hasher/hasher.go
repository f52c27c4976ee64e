// Package hasher hashes the service API key accepted by the HTTP auth
// middleware.
package hasher

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/artpar/recordbase/ports"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt hashes keys with bcrypt. Input is first reduced with SHA-256, so
// keys longer than bcrypt's 72-byte limit are not silently truncated.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to the
// library default.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (h *Bcrypt) Hash(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword(prehash(plaintext), h.cost)
}

// Compare reports whether plaintext matches hash.
func (h *Bcrypt) Compare(hash []byte, plaintext string) bool {
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, prehash(plaintext)) == nil
}

func prehash(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum[:])
	return out
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Plain stores keys verbatim. Tests only.
type Plain struct{}

// Hash returns plaintext unchanged.
func (Plain) Hash(plaintext string) ([]byte, error) {
	return []byte(plaintext), nil
}

// Compare checks for equality.
func (Plain) Compare(hash []byte, plaintext string) bool {
	return len(hash) > 0 && string(hash) == plaintext
}

var _ ports.Hasher = Plain{}
