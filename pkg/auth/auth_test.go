package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "user@memolab.io", true, "test-secret", 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "user@memolab.io", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT(1, "user@memolab.io", false, "secret-a", 1)
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret-b")
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cure-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cure-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cure-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestGenerateTokenPassword(t *testing.T) {
	a, err := GenerateTokenPassword(16)
	require.NoError(t, err)
	assert.Len(t, a, 16)

	b, err := GenerateTokenPassword(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, r := range a {
		assert.True(t, strings.ContainsRune(tokenAlphabet, r))
	}

	// Zero length falls back to the default.
	c, err := GenerateTokenPassword(0)
	require.NoError(t, err)
	assert.Len(t, c, 16)
}
