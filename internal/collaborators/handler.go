package collaborators

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// AddRequest is the body for POST /events/:id/collaborators. Either user_id or email is required.
type AddRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role" binding:"required"`
}

// VisibilityRequest is the body for PATCH /events/:id/visibility.
type VisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"`
}

// InviteRequest is the body for POST /events/:id/invites.
type InviteRequest struct {
	Role string `json:"role" binding:"required"`
}

// Handler handles collaborator HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a collaborators handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func eventParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /events/:id/collaborators.
func (h *Handler) List(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	list, err := h.svc.ListCollaborators(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Add handles POST /events/:id/collaborators.
func (h *Handler) Add(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := models.EventRole(req.Role)
	p := auth.CurrentPrincipal(c)

	var (
		collab *models.Collaborator
		err    error
	)
	switch {
	case req.UserID != "":
		userID, perr := uuid.Parse(req.UserID)
		if perr != nil {
			response.BadRequest(c, "invalid user_id")
			return
		}
		collab, err = h.svc.AddCollaborator(c.Request.Context(), p, eventID, userID, role)
	case req.Email != "":
		collab, err = h.svc.AddCollaboratorByEmail(c.Request.Context(), p, eventID, req.Email, role)
	default:
		response.BadRequest(c, "user_id or email required")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, collab)
}

// Remove handles DELETE /events/:id/collaborators/:userId.
func (h *Handler) Remove(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.svc.RemoveCollaborator(c.Request.Context(), auth.CurrentPrincipal(c), eventID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateVisibility handles PATCH /events/:id/visibility.
func (h *Handler) UpdateVisibility(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "visibility required")
		return
	}
	v := models.Visibility(req.Visibility)
	if err := h.svc.UpdateVisibility(c.Request.Context(), auth.CurrentPrincipal(c), eventID, v); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": eventID, "visibility": v})
}

// CreateInvite handles POST /events/:id/invites.
func (h *Handler) CreateInvite(c *gin.Context) {
	eventID, ok := eventParam(c)
	if !ok {
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	link, err := h.svc.GenerateInviteLink(c.Request.Context(), auth.CurrentPrincipal(c), eventID, models.EventRole(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Redeem handles POST /invites/:token/redeem.
func (h *Handler) Redeem(c *gin.Context) {
	collab, err := h.svc.RedeemInvite(c.Request.Context(), auth.CurrentPrincipal(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, collab)
}
