package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/persona-chat-backend/internal/auth"
)

const (
	userIDKey = "userID"
	claimsKey = "claims"
)

// TokenVerifier validates bearer tokens. *auth.TokenManager satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string, want auth.TokenType) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid access token with 401.
func RequireAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.Request)
		if raw == "" {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", nil)
			return
		}
		claims, err := v.Verify(c.Request.Context(), raw, auth.TokenAccess)
		if err != nil {
			AbortError(c, http.StatusUnauthorized, CodeUnauthorized, authMessage(err), nil)
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth resolves the caller when a valid token is present and
// otherwise proceeds anonymously.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c.Request); raw != "" {
			if claims, err := v.Verify(c.Request.Context(), raw, auth.TokenAccess); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

// Claims returns the verified access token claims, if any.
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*auth.Claims)
	return cl, ok && cl != nil
}

func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set(userIDKey, claims.Subject)
	c.Set(claimsKey, claims)
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrRevokedToken):
		return "Token revoked"
	default:
		return "Invalid token"
	}
}
