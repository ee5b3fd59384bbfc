package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/metrics"
	"github.com/eventdesk/backend/internal/models"
)

// EventReader loads events. A missing event is reported as apperr.ErrNotFound.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// CollaboratorReader loads a single collaborator record. A missing record is apperr.ErrNotFound.
type CollaboratorReader interface {
	GetCollaborator(ctx context.Context, eventID, userID uuid.UUID) (*models.Collaborator, error)
}

// Evaluator resolves the role a user holds in an event. It only reads and is safe for
// concurrent use.
type Evaluator struct {
	events        EventReader
	collaborators CollaboratorReader
	logger        *zap.Logger
}

// NewEvaluator creates an access evaluator.
func NewEvaluator(events EventReader, collaborators CollaboratorReader, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{events: events, collaborators: collaborators, logger: logger}
}

// GetUserEventRole returns the caller's effective role in an event. A missing event yields
// apperr.ErrNotFound; any other store failure degrades to viewer.
func (e *Evaluator) GetUserEventRole(ctx context.Context, eventID, userID uuid.UUID, globalRole models.AccountRole) (models.EventRole, error) {
	_, role, err := e.Resolve(ctx, eventID, userID, globalRole)
	return role, err
}

// Resolve is GetUserEventRole that also returns the loaded event. The event is nil when the
// lookup degraded to viewer.
func (e *Evaluator) Resolve(ctx context.Context, eventID, userID uuid.UUID, globalRole models.AccountRole) (*models.Event, models.EventRole, error) {
	event, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, "", apperr.ErrNotFound
		}
		e.logger.Warn("event lookup failed, degrading to viewer",
			zap.String("event_id", eventID.String()), zap.String("user_id", userID.String()), zap.Error(err))
		metrics.RoleResolutionDegraded.Inc()
		return nil, models.EventViewer, nil
	}
	return event, e.ResolveRole(ctx, event, userID, globalRole), nil
}

// ResolveRole applies the resolution order to an already loaded event:
// owner, collaborator record, denormalized volunteer/sponsor lists, global admin, viewer.
func (e *Evaluator) ResolveRole(ctx context.Context, event *models.Event, userID uuid.UUID, globalRole models.AccountRole) models.EventRole {
	if event.CreatedBy == userID {
		return models.EventOwner
	}

	collab, err := e.collaborators.GetCollaborator(ctx, event.ID, userID)
	switch {
	case err == nil && collab != nil:
		if collab.Role.Assignable() {
			return collab.Role
		}
		e.logger.Warn("collaborator has unassignable role, ignoring",
			zap.String("event_id", event.ID.String()), zap.String("user_id", userID.String()), zap.String("role", string(collab.Role)))
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		e.logger.Warn("collaborator lookup failed, degrading to viewer",
			zap.String("event_id", event.ID.String()), zap.String("user_id", userID.String()), zap.Error(err))
		metrics.RoleResolutionDegraded.Inc()
		return models.EventViewer
	}

	if containsID(event.Volunteers, userID) {
		return models.EventVolunteer
	}
	if containsID(event.Sponsors, userID) {
		return models.EventSponsor
	}
	if globalRole == models.AccountAdmin {
		return models.EventAdmin
	}
	return models.EventViewer
}

// CanManageCollaborators reports whether the user may add or remove collaborators.
// Global admins and the owner are decided without consulting collaborator records.
func (e *Evaluator) CanManageCollaborators(ctx context.Context, eventID, userID uuid.UUID, globalRole models.AccountRole) bool {
	if globalRole == models.AccountAdmin {
		return true
	}
	event, err := e.events.GetByID(ctx, eventID)
	if err != nil {
		return false
	}
	if event.CreatedBy == userID {
		return true
	}
	return ManagesCollaborators(globalRole, e.ResolveRole(ctx, event, userID, globalRole))
}

// ManagesCollaborators is the collaborator-management rule on an already resolved role:
// a global admin regardless of any collaborator record, the owner, or an organizer.
func ManagesCollaborators(globalRole models.AccountRole, role models.EventRole) bool {
	return globalRole == models.AccountAdmin || role == models.EventOwner || role == models.EventOrganizer
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
