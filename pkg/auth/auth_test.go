package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestSanitizeReplacesAtAndDot(t *testing.T) {
	assert.Equal(t, "jane_doe_example_com", Sanitize("jane.doe@example.com"))
}

func TestDisabledVerifierAlwaysAnonymous(t *testing.T) {
	v := Disabled{}
	user, err := v.Verify("whatever")
	require.NoError(t, err)
	assert.Equal(t, AnonymousUser, user)
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	key := []byte("secret")
	v := NewJWTVerifier(key, "email")

	token := signToken(t, key, jwt.MapClaims{
		"email": "jane.doe@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	user, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "jane_doe_example_com", user)
}

func TestJWTVerifierRejectsBadSignature(t *testing.T) {
	v := NewJWTVerifier([]byte("secret"), "email")
	token := signToken(t, []byte("wrong-key"), jwt.MapClaims{"email": "a@b.com"})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWTVerifierRejectsExpiredToken(t *testing.T) {
	key := []byte("secret")
	v := NewJWTVerifier(key, "email")
	token := signToken(t, key, jwt.MapClaims{
		"email": "a@b.com",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWTVerifierRejectsMissingClaim(t *testing.T) {
	key := []byte("secret")
	v := NewJWTVerifier(key, "email")
	token := signToken(t, key, jwt.MapClaims{"sub": "a@b.com", "exp": time.Now().Add(time.Hour).Unix()})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestJWTVerifierRejectsEmptyToken(t *testing.T) {
	v := NewJWTVerifier([]byte("secret"), "email")
	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
