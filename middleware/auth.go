package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"home-services-server/models"
)

// Context keys set by the auth middlewares.
const (
	UserKey   = "user"
	UserIDKey = "user_id"
)

// IdentityResolver turns a bearer token into the current user record.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
		return "", false
	}
	return tokenString, true
}

func setUser(c *gin.Context, user *models.User) {
	c.Set(UserKey, user)
	c.Set(UserIDKey, user.ID)
}

// AuthMiddleware requires a valid bearer token.
func AuthMiddleware(resolver IdentityResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization header must be: Bearer <token>"})
			return
		}

		user, err := resolver.Resolve(c.Request.Context(), tokenString)
		if err != nil {
			log.Debug("token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "token is invalid or expired"})
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the caller when a valid token is present and lets anonymous requests through.
func OptionalAuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString, ok := bearerToken(c); ok {
			if user, err := resolver.Resolve(c.Request.Context(), tokenString); err == nil {
				setUser(c, user)
			}
		}
		c.Next()
	}
}

// WebSocketAuthMiddleware reads the token from the query string, since browsers cannot set headers on upgrade.
func WebSocketAuthMiddleware(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "token query parameter is required"})
			return
		}
		user, err := resolver.Resolve(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "token is invalid or expired"})
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles. It must run after AuthMiddleware.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required"})
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "you do not have permission to perform this action"})
	}
}

// CurrentUser returns the user attached by one of the auth middlewares.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
