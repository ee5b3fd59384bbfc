package notifications

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/queue"
	"github.com/eventdesk/backend/pkg/response"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store reads notification logs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.NotificationLog, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, limit int) ([]*models.NotificationLog, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.NotificationLog, error)
}

// Enqueuer re-queues notifications.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, payload queue.NotificationPayload) error
}

// Handler handles notification log HTTP endpoints.
type Handler struct {
	repo   Store
	queue  Enqueuer
	logger *zap.Logger
}

// NewHandler creates a notification log handler.
func NewHandler(repo Store, q Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, queue: q, logger: logger}
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// ListByEvent handles GET /events/:id/notifications. Access is checked by the route guard.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logs, err := h.repo.ListByEvent(c.Request.Context(), eventID, limitParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}

// ListMine handles GET /notifications.
func (h *Handler) ListMine(c *gin.Context) {
	p := auth.CurrentPrincipal(c)
	if p == nil {
		response.Error(c, apperr.ErrNotAuthenticated)
		return
	}
	logs, err := h.repo.ListForUser(c.Request.Context(), p.UserID, limitParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, logs)
}

// Resend handles POST /events/:id/notifications/:logId/resend. Only failed notifications of
// the event in the path are re-queued.
func (h *Handler) Resend(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	logID, err := uuid.Parse(c.Param("logId"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	l, err := h.repo.Get(c.Request.Context(), logID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if l.EventID != eventID {
		response.Error(c, apperr.ErrNotFound)
		return
	}
	if l.Status != models.NotificationFailed {
		response.Conflict(c, "only failed notifications can be resent")
		return
	}
	payload := queue.NotificationPayload{
		Kind: l.Kind, EventID: l.EventID, ThreadID: l.ThreadID, UserID: l.UserID,
		Subject: l.Subject, Preview: l.Preview,
	}
	if p := auth.CurrentPrincipal(c); p != nil {
		payload.ActorID = p.UserID
	}
	if err := h.queue.EnqueueNotification(c.Request.Context(), payload); err != nil {
		h.logger.Error("resend enqueue failed", zap.String("log_id", logID.String()), zap.Error(err))
		response.Error(c, apperr.Backend(err))
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}
