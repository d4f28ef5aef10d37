package security

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestKey(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hpc.key")
	require.NoError(t, os.WriteFile(path, []byte("test-signing-key-material"), 0600))
	return path
}

func TestTokenMintHasExpectedClaims(t *testing.T) {
	keyPath := writeTestKey(t)
	minter, err := NewTokenMinter(keyPath, "alice", time.Hour, 30*time.Second)
	require.NoError(t, err)

	now := time.Now()
	tok, err := minter.Token(now)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)

	parsed, err := jwt.Parse(tok.Value, func(*jwt.Token) (any, error) {
		return []byte("test-signing-key-material"), nil
	})
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "alice", claims["sun"])
}

func TestTokenReusedOutsideHeadroom(t *testing.T) {
	keyPath := writeTestKey(t)
	minter, err := NewTokenMinter(keyPath, "alice", time.Hour, 30*time.Second)
	require.NoError(t, err)

	now := time.Now()
	first, err := minter.Token(now)
	require.NoError(t, err)

	second, err := minter.Token(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)
}

func TestTokenRenewedWithinHeadroomOfExpiry(t *testing.T) {
	keyPath := writeTestKey(t)
	minter, err := NewTokenMinter(keyPath, "alice", time.Minute, 30*time.Second)
	require.NoError(t, err)

	now := time.Now()
	first, err := minter.Token(now)
	require.NoError(t, err)

	// 45s later is within 30s headroom of a 60s lifetime token.
	second, err := minter.Token(now.Add(45 * time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)
}

func TestTokenMinterRejectsMissingKey(t *testing.T) {
	_, err := NewTokenMinter(filepath.Join(t.TempDir(), "absent.key"), "alice", time.Hour, 30*time.Second)
	assert.Error(t, err)
}
