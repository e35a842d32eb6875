package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"class-chat-service/internal/models"
)

const identityContextKey = "identity"

// IdentityProvider resolves a bearer token to the caller's identity.
type IdentityProvider interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// AuthMiddleware validates the Authorization header with the identity provider.
func AuthMiddleware(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token := BearerToken(header)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := provider.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(AuthFailureStatus(err))
			return
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

// AuthFailureStatus maps an Authenticate error to a response. Only rejected
// tokens are 401; a provider outage is 503 so clients retry instead of
// discarding their credentials.
func AuthFailureStatus(err error) (int, gin.H) {
	if errors.Is(err, models.ErrInvalidToken) {
		return http.StatusUnauthorized, gin.H{"error": "invalid token"}
	}
	return http.StatusServiceUnavailable, gin.H{"error": "identity service unavailable"}
}

// BearerToken extracts the token from an "Authorization: Bearer" value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func SetIdentity(c *gin.Context, identity models.Identity) {
	c.Set(identityContextKey, identity)
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := val.(models.Identity)
	return identity, ok
}
