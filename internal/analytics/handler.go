package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/guard"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// CollaboratorLister lists an event's collaborators.
type CollaboratorLister interface {
	ListCollaborators(ctx context.Context, eventID uuid.UUID) ([]models.Collaborator, error)
}

// ThreadCounter aggregates thread state.
type ThreadCounter interface {
	CountByStatus(ctx context.Context, eventID uuid.UUID) (open, resolved int, err error)
	UnreadTotal(ctx context.Context, eventID, userID uuid.UUID) (int, error)
}

// Handler handles GET /events/:id/summary.
type Handler struct {
	collaborators CollaboratorLister
	threads       ThreadCounter
}

// NewHandler creates an analytics handler.
func NewHandler(collaborators CollaboratorLister, threads ThreadCounter) *Handler {
	return &Handler{collaborators: collaborators, threads: threads}
}

// SummaryResponse is the JSON shape for the event summary.
type SummaryResponse struct {
	EventID         uuid.UUID                `json:"event_id"`
	Status          models.EventStatus       `json:"status,omitempty"`
	Visibility      models.Visibility        `json:"visibility,omitempty"`
	Collaborators   map[models.EventRole]int `json:"collaborators"`
	TeamSize        int                      `json:"team_size"`
	OpenThreads     int                      `json:"open_threads"`
	ResolvedThreads int                      `json:"resolved_threads"`
	UnreadForMe     int                      `json:"unread_for_me"`
}

// Summary builds the summary for an event. The three lookups run concurrently.
func (h *Handler) Summary(ctx context.Context, eventID, userID uuid.UUID) (*SummaryResponse, error) {
	out := &SummaryResponse{EventID: eventID, Collaborators: map[models.EventRole]int{}}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := h.collaborators.ListCollaborators(ctx, eventID)
		if err != nil {
			return err
		}
		for _, c := range list {
			out.Collaborators[c.Role]++
		}
		out.TeamSize = len(list) + 1 // owner
		return nil
	})
	g.Go(func() error {
		var err error
		out.OpenThreads, out.ResolvedThreads, err = h.threads.CountByStatus(ctx, eventID)
		return err
	})
	g.Go(func() error {
		var err error
		out.UnreadForMe, err = h.threads.UnreadTotal(ctx, eventID, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSummary handles GET /events/:id/summary. VIEW_ANALYTICS is enforced by the route guard.
func (h *Handler) GetSummary(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	p := auth.CurrentPrincipal(c)
	if p == nil {
		response.Unauthorized(c, "authentication required")
		return
	}
	summary, err := h.Summary(c.Request.Context(), eventID, p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if e := guard.EventFrom(c); e != nil {
		summary.Status, summary.Visibility = e.Status, e.Visibility
	}
	response.OK(c, summary)
}
