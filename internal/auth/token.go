// Package auth implements the identity resolver for the relay: bearer
// credentials (HS256 JWTs) are resolved to authenticated user identities.
//
// Token issuance is not a product surface of this service; GenerateToken
// exists for tests and operational tooling. Validation is strict: expired,
// malformed, or wrongly-signed tokens never resolve.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned when a credential is missing, malformed,
// expired, or fails signature verification.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims defines the payload stored inside a relay JWT.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Resolver validates bearer credentials and resolves them to user IDs.
// It is safe for concurrent use.
type Resolver struct {
	secret []byte
	issuer string
}

// NewResolver constructs a Resolver that verifies HS256 signatures with the
// given secret. The issuer claim is checked when non-empty.
func NewResolver(secret []byte, issuer string) *Resolver {
	return &Resolver{secret: secret, issuer: issuer}
}

// Resolve validates the credential and returns the authenticated user ID.
// It returns ErrInvalidCredential for every failure mode: callers only need
// to distinguish "resolved" from "not resolved".
func (r *Resolver) Resolve(credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrInvalidCredential
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		return "", ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.UserID) == "" {
		return "", ErrInvalidCredential
	}
	return claims.UserID, nil
}

// GenerateToken creates a signed JWT for userID, valid for ttl. It is the
// counterpart of Resolver.Resolve and is primarily used by tests and tooling.
func GenerateToken(secret []byte, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
