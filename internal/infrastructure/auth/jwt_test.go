package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_IssueAndVerify(t *testing.T) {
	j, err := NewJWT("s3cret", "expense-approval", time.Hour)
	require.NoError(t, err)

	token, err := j.Issue("u-123")
	require.NoError(t, err)

	sub, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-123", sub)
}

func TestJWT_RejectsBadTokens(t *testing.T) {
	j, err := NewJWT("s3cret", "expense-approval", time.Hour)
	require.NoError(t, err)

	other, err := NewJWT("different", "expense-approval", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue("u-1")
	require.NoError(t, err)

	wrongIssuer, err := NewJWT("s3cret", "someone-else", time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Issue("u-1")
	require.NoError(t, err)

	expired, err := NewJWT("s3cret", "expense-approval", time.Minute)
	require.NoError(t, err)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.Issue("u-1")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u-1",
		Issuer:    "expense-approval",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "expense-approval",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"wrong issuer": misissued,
		"expired":      stale,
		"alg none":     none,
		"no subject":   noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := j.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewJWT_RequiresSecret(t *testing.T) {
	_, err := NewJWT("", "", 0)
	assert.ErrorIs(t, err, ErrEmptySecret)

	j, err := NewJWT("x", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, j.ttl)

	_, err = j.Issue("")
	assert.Error(t, err)
}
