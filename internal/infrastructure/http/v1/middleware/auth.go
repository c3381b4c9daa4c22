package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"stockval/internal/core/apperror"
	appctx "stockval/internal/core/context"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// APIKeyVerifier checks "keyID:secret" credentials for machine callers.
type APIKeyVerifier interface {
	Verify(ctx context.Context, keyID, secret string) (*appctx.UserContext, error)
}

// Auth middleware authenticates requests and populates user context.
// Interactive callers present "Bearer <jwt>"; machine callers (resume
// worker, export jobs) present "ApiKey <keyID>:<secret>".
func Auth(validator JWTValidator, keys APIKeyVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		var (
			user *appctx.UserContext
			err  error
		)
		switch {
		case strings.EqualFold(parts[0], "bearer"):
			user, err = validator.ValidateToken(parts[1])
			if err != nil {
				_ = c.Error(apperror.NewUnauthorized("invalid token"))
				c.Abort()
				return
			}
		case strings.EqualFold(parts[0], "apikey") && keys != nil:
			keyID, secret, ok := strings.Cut(parts[1], ":")
			if !ok {
				abortUnauthorized(c, "invalid api key format")
				return
			}
			user, err = keys.Verify(c.Request.Context(), keyID, secret)
			if err != nil {
				_ = c.Error(err)
				c.Abort()
				return
			}
		default:
			abortUnauthorized(c, "unsupported authorization scheme")
			return
		}

		ctx := appctx.WithUser(c.Request.Context(), user)
		c.Request = c.Request.WithContext(ctx)

		// Store in gin context for easy access
		c.Set("user_id", user.UserID)

		c.Next()
	}
}

// RequireAdmin middleware restricts an endpoint to admin users.
// Persisting and deleting reports changes the carry-over chain; both are
// admin-only.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}
		if !user.IsAdmin {
			_ = c.Error(apperror.NewForbidden("admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
