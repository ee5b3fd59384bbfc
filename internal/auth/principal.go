package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/models"
)

// ContextPrincipal is the gin context key holding the authenticated *Principal.
const ContextPrincipal = "principal"

// Principal is the authenticated caller of one request.
type Principal struct {
	UserID    uuid.UUID
	Email     string
	Name      string
	Role      models.AccountRole
	SessionID string
}

// PrincipalFromClaims builds a principal from validated claims.
func PrincipalFromClaims(c *Claims) *Principal {
	return &Principal{
		UserID:    c.UserID,
		Email:     c.Email,
		Name:      c.Name,
		Role:      models.AccountRole(c.Role),
		SessionID: c.ID,
	}
}

// CurrentPrincipal returns the request's principal, or nil when the request is anonymous.
func CurrentPrincipal(c *gin.Context) *Principal {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}
