package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec signs and verifies compact credential payloads. Caller claims
// are nested under a single "dat" claim so arbitrary maps survive the
// round trip untouched. Rotating the secret invalidates every token
// issued before the rotation.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode serializes claims plus issued-at, signs with HS256 and
// returns the compact token. ttl <= 0 issues a token with no expiry
// (valid until the secret changes).
func (c *Codec) Encode(claims map[string]any, ttl time.Duration) (string, error) {
	payload := jwt.MapClaims{
		"dat": claims,
		"iat": time.Now().Unix(),
	}
	if ttl > 0 {
		payload["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(c.secret)
}

// Decode verifies signature and expiry and returns the original
// claims. Any failure (bad signature, expired, malformed, wrong
// algorithm) yields (nil, false); callers treat an undecodable token
// as anonymous, never as a server error.
func (c *Codec) Decode(raw string) (map[string]any, bool) {
	parsed, err := jwt.Parse(raw,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	dat, ok := mc["dat"].(map[string]any)
	if !ok {
		return nil, false
	}
	return dat, true
}
