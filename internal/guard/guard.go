// Package guard decides whether a principal may use an event-scoped route or affordance.
package guard

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/metrics"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

const (
	// ContextEvent holds the *models.Event loaded by RequireEvent, when it could be loaded.
	ContextEvent = "guard_event"
	// ContextEventRole holds the caller's resolved models.EventRole.
	ContextEventRole = "guard_event_role"
)

// Requirement lists what a route needs. Roles is a membership test; both permission lists
// must pass completely. Check, when set, also has to hold for the caller and resolved role.
type Requirement struct {
	Roles            []models.EventRole
	Permissions      []access.Permission
	EventPermissions []access.EventPermission
	Check            func(p *auth.Principal, role models.EventRole) bool
}

func (r Requirement) needsEvent() bool {
	return len(r.Roles) > 0 || len(r.EventPermissions) > 0 || r.Check != nil
}

// ManageCollaborators guards collaborator, invite and delivery-log routes with the same rule
// the collaborators service applies.
var ManageCollaborators = Requirement{
	Check: func(p *auth.Principal, role models.EventRole) bool {
		return access.ManagesCollaborators(p.Role, role)
	},
}

// Resolver resolves a user's role in an event.
type Resolver interface {
	Resolve(ctx context.Context, eventID, userID uuid.UUID, globalRole models.AccountRole) (*models.Event, models.EventRole, error)
}

// OrgMembership answers organization membership for the organization visibility level.
type OrgMembership interface {
	IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
}

// Result is the outcome of an allowed check.
type Result struct {
	Event *models.Event
	Role  models.EventRole
}

// Authorizer evaluates requirements against a principal.
type Authorizer struct {
	resolver Resolver
	orgs     OrgMembership
	logger   *zap.Logger
}

// NewAuthorizer creates an authorizer.
func NewAuthorizer(resolver Resolver, orgs OrgMembership, logger *zap.Logger) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{resolver: resolver, orgs: orgs, logger: logger}
}

// Authorize checks req for principal in the event eventID (uuid.Nil when the route has no
// event). Order: authentication, configuration, visibility, roles, permissions.
// Events the caller may not see are reported as apperr.ErrNotFound.
func (a *Authorizer) Authorize(ctx context.Context, p *auth.Principal, eventID uuid.UUID, req Requirement) (*Result, error) {
	res, err := a.authorize(ctx, p, eventID, req)
	metrics.AccessDecisions.WithLabelValues(outcome(err)).Inc()
	return res, err
}

func (a *Authorizer) authorize(ctx context.Context, p *auth.Principal, eventID uuid.UUID, req Requirement) (*Result, error) {
	if p == nil {
		return nil, apperr.ErrNotAuthenticated
	}
	if eventID == uuid.Nil {
		if req.needsEvent() {
			return nil, apperr.ErrConfiguration
		}
		for _, perm := range req.Permissions {
			if !access.Allows(p.Role, perm) {
				return nil, apperr.ErrPermissionDenied
			}
		}
		return &Result{}, nil
	}

	event, role, err := a.resolver.Resolve(ctx, eventID, p.UserID, p.Role)
	if err != nil {
		return nil, err
	}
	if role == models.EventViewer {
		visible, err := a.visible(ctx, event, p.UserID)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, apperr.ErrNotFound
		}
	}

	if len(req.Roles) > 0 && !satisfiesRole(role, req.Roles) {
		return nil, apperr.ErrPermissionDenied
	}
	subject := role.AccountEquivalent()
	for _, perm := range req.Permissions {
		if !access.Allows(subject, perm) {
			return nil, apperr.ErrPermissionDenied
		}
	}
	for _, perm := range req.EventPermissions {
		if !access.HasEventPermission(role, perm) {
			return nil, apperr.ErrPermissionDenied
		}
	}
	if req.Check != nil && !req.Check(p, role) {
		return nil, apperr.ErrPermissionDenied
	}
	return &Result{Event: event, Role: role}, nil
}

// visible applies the event's visibility to a viewer. A degraded lookup (nil event) fails closed.
func (a *Authorizer) visible(ctx context.Context, event *models.Event, userID uuid.UUID) (bool, error) {
	if event == nil {
		return false, apperr.ErrPermissionDenied
	}
	member := false
	if event.Visibility == models.VisibilityOrganization && event.OrganizationID != nil && a.orgs != nil {
		ok, err := a.orgs.IsMember(ctx, *event.OrganizationID, userID)
		if err != nil {
			a.logger.Warn("organization membership lookup failed",
				zap.String("event_id", event.ID.String()), zap.String("user_id", userID.String()), zap.Error(err))
		}
		member = ok
	}
	return access.CanView(event, models.EventViewer, member), nil
}

// Visible is the non-blocking variant: it reports whether the affordance guarded by req
// should be shown, and never returns an error.
func (a *Authorizer) Visible(ctx context.Context, p *auth.Principal, eventID uuid.UUID, req Requirement) bool {
	_, err := a.Authorize(ctx, p, eventID, req)
	return err == nil
}

// ViewEvent loads an event the caller is allowed to see.
func (a *Authorizer) ViewEvent(ctx context.Context, p *auth.Principal, eventID uuid.UUID) (*models.Event, models.EventRole, error) {
	res, err := a.Authorize(ctx, p, eventID, Requirement{EventPermissions: []access.EventPermission{access.EventView}})
	if err != nil {
		return nil, "", err
	}
	if res.Event == nil {
		return nil, "", apperr.ErrNotFound
	}
	return res.Event, res.Role, nil
}

// satisfiesRole treats owner as organizer and admin as every role but owner. Ownership is
// never implied.
func satisfiesRole(role models.EventRole, required []models.EventRole) bool {
	for _, r := range required {
		switch {
		case r == role:
			return true
		case r == models.EventOrganizer && role == models.EventOwner:
			return true
		case role == models.EventAdmin && r != models.EventOwner:
			return true
		}
	}
	return false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, apperr.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, apperr.ErrConfiguration):
		return "config_error"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrPermissionDenied):
		return "denied"
	}
	return "error"
}

// RequireEvent blocks the route unless req passes for the event named by the :id path
// parameter. On success the resolved role (and event, when loaded) are stored in context.
func (a *Authorizer) RequireEvent(req Requirement) gin.HandlerFunc {
	return a.requireParam("id", req)
}

// RequireEventParam is RequireEvent for routes that name the event with another parameter.
func (a *Authorizer) RequireEventParam(param string, req Requirement) gin.HandlerFunc {
	return a.requireParam(param, req)
}

func (a *Authorizer) requireParam(param string, req Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID := uuid.Nil
		if raw := c.Param(param); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.BadRequest(c, "invalid event id")
				c.Abort()
				return
			}
			eventID = id
		}
		res, err := a.Authorize(c.Request.Context(), auth.CurrentPrincipal(c), eventID, req)
		if err != nil {
			if errors.Is(err, apperr.ErrConfiguration) {
				a.logger.Error("guarded route has no event context",
					zap.String("method", c.Request.Method),
					zap.String("route", c.FullPath()),
					zap.String("param", param),
					zap.Any("roles", req.Roles),
					zap.Int("permissions", len(req.Permissions)+len(req.EventPermissions)))
			}
			response.Error(c, err)
			c.Abort()
			return
		}
		if res.Event != nil {
			c.Set(ContextEvent, res.Event)
		}
		if res.Role != "" {
			c.Set(ContextEventRole, res.Role)
		}
		c.Next()
	}
}

// EventFrom returns the event stored by RequireEvent.
func EventFrom(c *gin.Context) *models.Event {
	v, ok := c.Get(ContextEvent)
	if !ok {
		return nil
	}
	e, _ := v.(*models.Event)
	return e
}

// RoleFrom returns the event role stored by RequireEvent.
func RoleFrom(c *gin.Context) models.EventRole {
	v, _ := c.Get(ContextEventRole)
	r, _ := v.(models.EventRole)
	return r
}
