// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides bearer-token authentication for the REST API. WebSocket
// sessions authenticate separately during admission, so this middleware only
// guards plain HTTP routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// userIDKey is the Gin context key under which the authenticated user ID is
// stored. Shared with the rate limiter and idempotency middleware.
const userIDKey = "userID"

// CredentialResolver validates an opaque credential and returns the user
// identity it proves. Implemented by the auth package's token resolver.
type CredentialResolver interface {
	Resolve(credential string) (string, error)
}

// UserIDFrom returns the authenticated user ID stored by RequireAuth, or
// ("", false) when the request is anonymous.
func UserIDFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// RequireAuth returns a Gin middleware that rejects requests lacking a valid
// bearer token.
//
// Behavior:
//   - Reads the Authorization header and expects the "Bearer <token>" scheme.
//   - Resolves the token via the supplied resolver; failures yield 401 with a
//     structured error body.
//   - On success, stores the user ID under the "userID" context key so the
//     logger, rate limiter, and handlers can attribute the request.
func RequireAuth(resolver CredentialResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(raw, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		userID, err := resolver.Resolve(strings.TrimSpace(token))
		if err != nil {
			unauthorized(c, "invalid credential")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
