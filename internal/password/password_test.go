package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/stretchr/testify/require"
)

func TestHashVerify_RoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	d, err := h.Hash("hunter2")
	require.NoError(t, err)
	require.True(t, h.Verify("hunter2", d))
	require.False(t, h.Verify("hunter3", d))
}

func TestHash_SaltedPerCall(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	d1, err := h.Hash("same-input")
	require.NoError(t, err)
	d2, err := h.Hash("same-input")
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)
	require.True(t, h.Verify("same-input", d1))
	require.True(t, h.Verify("same-input", d2))
}

func TestVerify_MalformedDigest(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	require.False(t, h.Verify("anything", ""))
	require.False(t, h.Verify("anything", "not-a-bcrypt-digest"))
	require.False(t, h.Verify("anything", "$2a$10$tooshort"))
}

func TestNewHasher_CostClamped(t *testing.T) {
	h := NewHasher(-1)
	d, err := h.Hash("pw")
	require.NoError(t, err)
	require.True(t, h.Verify("pw", d))
}
