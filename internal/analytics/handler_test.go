package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/guard"
	"github.com/eventdesk/backend/internal/models"
)

type stubCollaborators []models.Collaborator

func (s stubCollaborators) ListCollaborators(context.Context, uuid.UUID) ([]models.Collaborator, error) {
	return s, nil
}

type stubThreads struct {
	open, resolved, unread int
	err                    error
}

func (s stubThreads) CountByStatus(context.Context, uuid.UUID) (int, int, error) {
	return s.open, s.resolved, s.err
}

func (s stubThreads) UnreadTotal(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return s.unread, nil
}

func TestSummary(t *testing.T) {
	collabs := stubCollaborators{
		{Role: models.EventOrganizer}, {Role: models.EventVolunteer}, {Role: models.EventVolunteer}, {Role: models.EventSponsor},
	}
	h := NewHandler(collabs, stubThreads{open: 2, resolved: 5, unread: 3})
	eventID := uuid.New()

	s, err := h.Summary(context.Background(), eventID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, map[models.EventRole]int{models.EventOrganizer: 1, models.EventVolunteer: 2, models.EventSponsor: 1}, s.Collaborators)
	assert.Equal(t, 5, s.TeamSize)
	assert.Equal(t, 2, s.OpenThreads)
	assert.Equal(t, 5, s.ResolvedThreads)
	assert.Equal(t, 3, s.UnreadForMe)

	_, err = NewHandler(collabs, stubThreads{err: apperr.ErrBackendUnavailable}).Summary(context.Background(), eventID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrBackendUnavailable)
}

func TestGetSummaryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	event := &models.Event{ID: uuid.New(), Status: models.EventStatusActive, Visibility: models.VisibilityPrivate}
	h := NewHandler(stubCollaborators{}, stubThreads{open: 1})

	r := gin.New()
	r.GET("/events/:id/summary", func(c *gin.Context) {
		c.Set(auth.ContextPrincipal, &auth.Principal{UserID: uuid.New()})
		c.Set(guard.ContextEvent, event)
	}, h.GetSummary)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/"+event.ID.String()+"/summary", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data SummaryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.OpenThreads)
	assert.Equal(t, 1, body.Data.TeamSize)
	assert.Equal(t, models.VisibilityPrivate, body.Data.Visibility)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/bad/summary", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
