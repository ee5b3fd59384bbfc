package organizations

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// Slug must be lowercase alphanumeric and hyphens only, 2-64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Store is the persistence the handler needs.
type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
	AddMember(ctx context.Context, orgID, userID uuid.UUID) error
	IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Organization, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error)
}

// Handler handles organization HTTP endpoints.
type Handler struct {
	repo Store
}

// NewHandler creates an organizations handler.
func NewHandler(repo Store) *Handler {
	return &Handler{repo: repo}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug" binding:"required"`
}

// JoinOrganizationRequest is the body for POST /organizations/join.
type JoinOrganizationRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// CreateOrganization handles POST /organizations. The caller becomes the owner.
func (h *Handler) CreateOrganization(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "name and slug required")
		return
	}
	body.Slug = strings.ToLower(strings.TrimSpace(body.Slug))
	if !slugRegex.MatchString(body.Slug) {
		response.BadRequest(c, "slug must be 2-64 chars, lowercase letters, numbers, hyphens only")
		return
	}
	body.Name = strings.TrimSpace(body.Name)
	if len(body.Name) < 1 || len(body.Name) > 255 {
		response.BadRequest(c, "name must be 1-255 characters")
		return
	}
	org := &models.Organization{Name: body.Name, Slug: body.Slug, CreatedBy: p.UserID}
	if err := h.repo.Create(c.Request.Context(), org); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			response.Conflict(c, "an organization with this slug already exists")
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, org)
}

// JoinOrganization handles POST /organizations/join.
func (h *Handler) JoinOrganization(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	var body JoinOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "slug required")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(body.Slug))
	if slug == "" {
		response.BadRequest(c, "slug required")
		return
	}
	org, err := h.repo.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.repo.AddMember(c.Request.Context(), org.ID, p.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// ListMyOrganizations handles GET /organizations.
func (h *Handler) ListMyOrganizations(c *gin.Context) {
	orgs, err := h.repo.ListForUser(c.Request.Context(), auth.CurrentPrincipal(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, orgs)
}

// ListMembers handles GET /organizations/:id/members. Members only.
func (h *Handler) ListMembers(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid organization id")
		return
	}
	ok, err := h.repo.IsMember(c.Request.Context(), orgID, auth.CurrentPrincipal(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, apperr.ErrPermissionDenied)
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, members)
}
