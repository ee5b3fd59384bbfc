package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given account roles.
func RequireRole(roles ...models.AccountRole) gin.HandlerFunc {
	allowed := make(map[models.AccountRole]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		p := auth.CurrentPrincipal(c)
		if p == nil {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			response.Forbidden(c, "not authorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
