package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hashed, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hashed)

	assert.True(t, h.Verify("s3cret", hashed))
	assert.False(t, h.Verify("S3cret", hashed))
	assert.False(t, h.Verify("s3cret", "not-a-hash"))
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("key", time.Hour)

	token, err := m.Issue(42, "alice")
	require.NoError(t, err)

	id, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{AccountID: 42, Username: "alice"}, id)
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("key", time.Minute)
	valid, err := m.Issue(1, "alice")
	require.NoError(t, err)

	expired := NewTokenManager("key", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(1, "alice")
	require.NoError(t, err)

	other, err := NewTokenManager("other-key", time.Minute).Issue(1, "alice")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{AccountID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":     "abc.def.ghi",
		"expired":     old,
		"wrong key":   other,
		"alg none":    unsigned,
		"truncated":   valid[:len(valid)-4],
		"empty token": "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
