package security

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// TokenMinter mints and renews the short-lived HS256 token the HPC Cluster
// Adapter presents to the remote REST endpoint. A single minter instance
// is shared across requests; renewal is inline and single-writer, guarded
// by mu, since the adapter issues requests sequentially per job.
type TokenMinter struct {
	key      []byte
	username string
	lifetime time.Duration
	headroom time.Duration

	mu      sync.Mutex
	current types.Token
}

// NewTokenMinter loads the symmetric signing key from keyPath and prepares
// a minter for username. No token is minted until the first call to Token.
func NewTokenMinter(keyPath, username string, lifetime, headroom time.Duration) (*TokenMinter, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read HPC signing key %s: %w", keyPath, err)
	}
	return &TokenMinter{
		key:      key,
		username: username,
		lifetime: lifetime,
		headroom: headroom,
	}, nil
}

// Token returns a valid token, re-minting if the current one would expire
// within the configured headroom of now.
func (m *TokenMinter) Token(now time.Time) (types.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Value == "" || m.current.WithinHeadroom(now, m.headroom) {
		minted, err := m.mint(now)
		if err != nil {
			return types.Token{}, err
		}
		m.current = minted
	}
	return m.current, nil
}

// mint signs a new HS256 token with claims {iat, exp, sun=username}.
func (m *TokenMinter) mint(now time.Time) (types.Token, error) {
	exp := now.Add(m.lifetime)
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"sun": m.username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return types.Token{}, fmt.Errorf("failed to sign HPC token: %w", err)
	}
	metrics.TokensMintedTotal.Inc()
	return types.Token{Value: signed, IssuedAt: now, ExpiresAt: exp}, nil
}
