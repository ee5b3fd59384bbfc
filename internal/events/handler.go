package events

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/guard"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// Store is the event persistence the handler needs.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Event, error)
	ListPublic(ctx context.Context) ([]*models.Event, error)
	Update(ctx context.Context, id uuid.UUID, title, description string, startsAt, endsAt *time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.EventStatus) error
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title          string  `json:"title" binding:"required"`
	Description    string  `json:"description"`
	StartsAt       string  `json:"starts_at" binding:"required"`
	EndsAt         *string `json:"ends_at"`
	Visibility     string  `json:"visibility"` // optional, defaults to private
	OrganizationID *string `json:"organization_id"`
}

// UpdateRequest is the body for PATCH /events/:id.
type UpdateRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	StartsAt    *string `json:"starts_at"`
	EndsAt      *string `json:"ends_at"`
}

// StatusRequest is the body for POST /events/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   Store
	orgs   guard.OrgMembership
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(repo Store, orgs guard.OrgMembership, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, orgs: orgs, logger: logger}
}

// Create handles POST /events. The caller becomes the owner.
func (h *Handler) Create(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	startsAt, err := parseTime(req.StartsAt)
	if err != nil {
		response.BadRequest(c, "invalid starts_at")
		return
	}
	var endsAt *time.Time
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		if t.Before(startsAt) {
			response.BadRequest(c, "ends_at must not be before starts_at")
			return
		}
		endsAt = &t
	}

	visibility := models.VisibilityPrivate
	if req.Visibility != "" {
		visibility = models.Visibility(req.Visibility)
		if !visibility.Valid() {
			response.BadRequest(c, "invalid visibility")
			return
		}
	}

	var orgID *uuid.UUID
	if req.OrganizationID != nil && *req.OrganizationID != "" {
		id, err := uuid.Parse(*req.OrganizationID)
		if err != nil {
			response.BadRequest(c, "invalid organization_id")
			return
		}
		member, err := h.orgs.IsMember(c.Request.Context(), id, p.UserID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !member {
			response.Error(c, apperr.ErrPermissionDenied)
			return
		}
		orgID = &id
	}

	e := &models.Event{
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		Status:         models.EventStatusPlanning,
		Visibility:     visibility,
		CreatedBy:      p.UserID,
		OrganizationID: orgID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event", zap.String("user_id", p.UserID.String()), zap.Error(err))
		response.Error(c, err)
		return
	}
	response.Created(c, e)
}

// Get handles GET /events/:id. Runs behind guard.RequireEvent with EVENT_VIEW.
func (h *Handler) Get(c *gin.Context) {
	e := guard.EventFrom(c)
	if e == nil {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	response.OK(c, gin.H{"event": e, "role": guard.RoleFrom(c)})
}

// List handles GET /events. ?public=1 lists public events, otherwise the caller's own.
func (h *Handler) List(c *gin.Context) {
	var (
		list []*models.Event
		err  error
	)
	if c.Query("public") == "1" {
		list, err = h.repo.ListPublic(c.Request.Context())
	} else {
		list, err = h.repo.ListForUser(c.Request.Context(), auth.CurrentPrincipal(c).UserID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Update handles PATCH /events/:id. Runs behind guard.RequireEvent with EVENT_EDIT.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	var startsAt, endsAt *time.Time
	if req.StartsAt != nil {
		t, err := parseTime(*req.StartsAt)
		if err != nil {
			response.BadRequest(c, "invalid starts_at")
			return
		}
		startsAt = &t
	}
	if req.EndsAt != nil {
		t, err := parseTime(*req.EndsAt)
		if err != nil {
			response.BadRequest(c, "invalid ends_at")
			return
		}
		endsAt = &t
	}
	if err := h.repo.Update(c.Request.Context(), id, strings.TrimSpace(req.Title), req.Description, startsAt, endsAt); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetStatus handles POST /events/:id/status. Runs behind guard.RequireEvent with EVENT_EDIT;
// cancelling additionally needs EVENT_DELETE.
func (h *Handler) SetStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status := models.EventStatus(req.Status)
	if !status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	if status == models.EventStatusCancelled && !access.HasEventPermission(guard.RoleFrom(c), access.EventDelete) {
		response.Error(c, apperr.ErrPermissionDenied)
		return
	}
	if err := h.repo.SetStatus(c.Request.Context(), id, status); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id, "status": status})
}
