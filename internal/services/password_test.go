package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	h := NewPasswordHasher(4)
	require.Equal(t, MinBcryptCost, h.cost)

	h = NewPasswordHasher(bcrypt.MaxCost + 1)
	require.Equal(t, bcrypt.MaxCost, h.cost)
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher(MinBcryptCost)

	digest, err := h.Hash("Secret1")
	require.NoError(t, err)
	require.NotEqual(t, "Secret1", digest)
	require.NotContains(t, digest, "Secret1")

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	require.GreaterOrEqual(t, cost, MinBcryptCost)

	require.True(t, h.Verify("Secret1", digest))
	require.False(t, h.Verify("secret1", digest))
}

func TestPasswordHasher_VerifyEmptyDigest(t *testing.T) {
	h := fastHasher()
	require.False(t, h.Verify("anything", ""))
	require.False(t, h.Verify("anything", "not-a-bcrypt-hash"))
}

func TestPasswordHasher_SaltsEachHash(t *testing.T) {
	h := fastHasher()
	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
