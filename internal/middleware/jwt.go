package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for the account role in gin context.
	ContextUserRole = "user_role"
)

// SessionChecker reports whether a login session is still live.
type SessionChecker interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// JWT returns a middleware that validates the bearer token, checks its session and sets the
// principal in context.
func JWT(jwtService *auth.JWTService, sessions SessionChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		live, err := sessions.Exists(c.Request.Context(), claims.ID)
		if err != nil {
			logger.Error("session lookup failed", zap.String("user_id", claims.UserID.String()), zap.Error(err))
			response.ServiceUnavailable(c, "temporarily unavailable, try again")
			c.Abort()
			return
		}
		if !live {
			response.Unauthorized(c, "session ended")
			c.Abort()
			return
		}
		p := auth.PrincipalFromClaims(claims)
		c.Set(auth.ContextPrincipal, p)
		c.Set(ContextUserID, p.UserID)
		c.Set(ContextUserRole, p.Role)
		c.Next()
	}
}
