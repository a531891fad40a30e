package password

import "golang.org/x/crypto/bcrypt"

// Default bcrypt work factor. Tunable via config for test speed-ups.
const DefaultCost = bcrypt.DefaultCost

// Hasher hashes and verifies account passwords with bcrypt. Each Hash
// call salts independently, so equal inputs never produce equal
// digests.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches digest. A malformed or
// truncated digest verifies false; it is never an error to the
// caller.
func (h *Hasher) Verify(plain, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
