// Package auth verifies the bearer credential on an inbound request and
// yields the sanitized user identity used as the tenancy key everywhere
// else in the service. The identity provider itself (an OpenID-compatible
// issuer) is an external collaborator; this package only checks the token
// it hands out and derives a partition-safe identifier from it.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidCredential is returned when the bearer token is missing,
// malformed, expired, or fails signature verification.
var ErrInvalidCredential = errors.New("invalid bearer credential")

// AnonymousUser is the identity assigned to every request when auth is
// disabled.
const AnonymousUser = "anonymous"

// Verifier authenticates a bearer credential and returns the sanitized
// tenancy key to use for the request.
type Verifier interface {
	Verify(bearerToken string) (string, error)
}

// Sanitize derives a bbolt-bucket-safe tenancy key from an email-shaped
// identity by replacing the characters that would otherwise collide with
// the store's own bucket-naming conventions.
func Sanitize(identity string) string {
	r := strings.NewReplacer("@", "_", ".", "_")
	return r.Replace(identity)
}

// Disabled is a Verifier that accepts every request as AnonymousUser. It
// is selected when auth_enabled is false in configuration.
type Disabled struct{}

// Verify always succeeds as the anonymous identity.
func (Disabled) Verify(string) (string, error) {
	return AnonymousUser, nil
}

// JWTVerifier validates an HMAC-signed bearer token against a shared
// verification key and extracts the configured identity claim (default
// "email") as the user's identity; the token's issuer and audience are not
// checked. It covers the "verify a bearer credential" contract without a
// full OpenID discovery client, which nothing in the example corpus
// provides.
type JWTVerifier struct {
	key          []byte
	claim        string
	expectedAud  string
	requireEmail bool
}

// NewJWTVerifier constructs a JWTVerifier. claim names the token claim
// holding the user identity (typically "email" or "sub").
func NewJWTVerifier(key []byte, claim string) *JWTVerifier {
	if claim == "" {
		claim = "email"
	}
	return &JWTVerifier{key: key, claim: claim}
}

// Verify parses and validates bearerToken, returning the sanitized
// identity extracted from the configured claim.
func (v *JWTVerifier) Verify(bearerToken string) (string, error) {
	bearerToken = strings.TrimPrefix(bearerToken, "Bearer ")
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return "", ErrInvalidCredential
	}

	token, err := jwt.Parse(bearerToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredential
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredential
	}

	identity, ok := claims[v.claim].(string)
	if !ok || identity == "" {
		return "", ErrInvalidCredential
	}

	return Sanitize(identity), nil
}
