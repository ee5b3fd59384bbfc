package guard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/apperr"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
)

type stubEvents map[uuid.UUID]*models.Event

func (s stubEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	if e, ok := s[id]; ok {
		return e, nil
	}
	return nil, apperr.ErrNotFound
}

type stubCollaborators map[uuid.UUID]models.EventRole

func (s stubCollaborators) GetCollaborator(_ context.Context, eventID, userID uuid.UUID) (*models.Collaborator, error) {
	if r, ok := s[userID]; ok {
		return &models.Collaborator{EventID: eventID, UserID: userID, Role: r}, nil
	}
	return nil, apperr.ErrNotFound
}

type stubOrgs map[uuid.UUID]bool

func (s stubOrgs) IsMember(_ context.Context, _, userID uuid.UUID) (bool, error) {
	return s[userID], nil
}

type brokenResolver struct{}

func (brokenResolver) Resolve(context.Context, uuid.UUID, uuid.UUID, models.AccountRole) (*models.Event, models.EventRole, error) {
	return nil, models.EventViewer, nil
}

type world struct {
	authz     *Authorizer
	eval      *access.Evaluator
	event     *models.Event
	owner     uuid.UUID
	organizer uuid.UUID
	volunteer uuid.UUID
	sponsor   uuid.UUID
	orgMember uuid.UUID
}

func newWorld() *world {
	orgID := uuid.New()
	w := &world{
		owner: uuid.New(), organizer: uuid.New(), volunteer: uuid.New(),
		sponsor: uuid.New(), orgMember: uuid.New(),
	}
	w.event = &models.Event{ID: uuid.New(), CreatedBy: w.owner, Visibility: models.VisibilityPrivate, OrganizationID: &orgID}
	collabs := stubCollaborators{
		w.organizer: models.EventOrganizer,
		w.volunteer: models.EventVolunteer,
		w.sponsor:   models.EventSponsor,
	}
	w.eval = access.NewEvaluator(stubEvents{w.event.ID: w.event}, collabs, nil)
	w.authz = NewAuthorizer(w.eval, stubOrgs{w.orgMember: true}, nil)
	return w
}

func principal(id uuid.UUID, role models.AccountRole) *auth.Principal {
	return &auth.Principal{UserID: id, Role: role}
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	organizerOnly := Requirement{Roles: []models.EventRole{models.EventOrganizer}}

	t.Run("no principal", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, nil, w.event.ID, organizerOnly)
		assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)
	})

	t.Run("roles without an event is a configuration error", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, principal(w.owner, models.AccountAdmin), uuid.Nil, organizerOnly)
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})

	t.Run("owner satisfies organizer", func(t *testing.T) {
		res, err := w.authz.Authorize(ctx, principal(w.owner, models.AccountAttendee), w.event.ID, organizerOnly)
		require.NoError(t, err)
		assert.Equal(t, models.EventOwner, res.Role)
	})

	t.Run("global admin satisfies any role", func(t *testing.T) {
		res, err := w.authz.Authorize(ctx, principal(uuid.New(), models.AccountAdmin), w.event.ID,
			Requirement{Roles: []models.EventRole{models.EventSponsor}})
		require.NoError(t, err)
		assert.Equal(t, models.EventAdmin, res.Role)
	})

	t.Run("global admin is never the owner", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, principal(uuid.New(), models.AccountAdmin), w.event.ID,
			Requirement{Roles: []models.EventRole{models.EventOwner}})
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("volunteer is not an organizer", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, principal(w.volunteer, models.AccountVolunteer), w.event.ID, organizerOnly)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("sponsor cannot share", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, principal(w.sponsor, models.AccountSponsor), w.event.ID,
			Requirement{EventPermissions: []access.EventPermission{access.EventShare}})
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("resource permissions use the event role", func(t *testing.T) {
		deliverables := Requirement{Permissions: []access.Permission{access.MustPermission(access.ResourceDeliverables, access.ActionWrite)}}
		_, err := w.authz.Authorize(ctx, principal(w.volunteer, models.AccountAttendee), w.event.ID, deliverables)
		assert.NoError(t, err)
		_, err = w.authz.Authorize(ctx, principal(w.sponsor, models.AccountAdmin), w.event.ID, deliverables)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("resource permissions without an event use the account role", func(t *testing.T) {
		schedule := Requirement{Permissions: []access.Permission{access.MustPermission(access.ResourceSchedule, access.ActionWrite)}}
		_, err := w.authz.Authorize(ctx, principal(uuid.New(), models.AccountOrganizer), uuid.Nil, schedule)
		assert.NoError(t, err)
		_, err = w.authz.Authorize(ctx, principal(uuid.New(), models.AccountAttendee), uuid.Nil, schedule)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("every permission must pass", func(t *testing.T) {
		req := Requirement{EventPermissions: []access.EventPermission{access.EventView, access.EventEdit}}
		_, err := w.authz.Authorize(ctx, principal(w.volunteer, models.AccountVolunteer), w.event.ID, req)
		assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	})

	t.Run("private event is hidden from strangers", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, principal(uuid.New(), models.AccountOrganizer), w.event.ID, Requirement{})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := w.authz.Authorize(ctx, principal(w.owner, models.AccountAdmin), uuid.New(), organizerOnly)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestVisibilityLevels(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	view := Requirement{EventPermissions: []access.EventPermission{access.EventView}}
	stranger := principal(uuid.New(), models.AccountAttendee)
	member := principal(w.orgMember, models.AccountAttendee)

	w.event.Visibility = models.VisibilityOrganization
	assert.True(t, w.authz.Visible(ctx, member, w.event.ID, view))
	assert.False(t, w.authz.Visible(ctx, stranger, w.event.ID, view))

	w.event.Visibility = models.VisibilityPublic
	assert.True(t, w.authz.Visible(ctx, stranger, w.event.ID, view))
	assert.False(t, w.authz.Visible(ctx, stranger, w.event.ID, Requirement{EventPermissions: []access.EventPermission{access.EventSendMessages}}))
}

func TestDegradedLookupFailsClosed(t *testing.T) {
	a := NewAuthorizer(brokenResolver{}, nil, nil)
	_, err := a.Authorize(context.Background(), principal(uuid.New(), models.AccountAdmin), uuid.New(), Requirement{})
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func routerAs(p *auth.Principal, register func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if p != nil {
			c.Set(auth.ContextPrincipal, p)
		}
	})
	register(r)
	return r
}

func TestRequireEvent(t *testing.T) {
	w := newWorld()
	ok := func(c *gin.Context) { c.String(http.StatusOK, string(RoleFrom(c))) }
	edit := Requirement{EventPermissions: []access.EventPermission{access.EventEdit}}

	tests := []struct {
		name string
		p    *auth.Principal
		path string
		want int
	}{
		{"anonymous", nil, "/events/" + w.event.ID.String(), http.StatusUnauthorized},
		{"organizer", principal(w.organizer, models.AccountOrganizer), "/events/" + w.event.ID.String(), http.StatusOK},
		{"volunteer", principal(w.volunteer, models.AccountVolunteer), "/events/" + w.event.ID.String(), http.StatusForbidden},
		{"stranger", principal(uuid.New(), models.AccountOrganizer), "/events/" + w.event.ID.String(), http.StatusNotFound},
		{"bad id", principal(w.owner, models.AccountOrganizer), "/events/not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := routerAs(tt.p, func(r *gin.Engine) {
				r.PATCH("/events/:id", w.authz.RequireEvent(edit), ok)
			})
			rec := serve(r, http.MethodPatch, tt.path)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("denial uses the generic message", func(t *testing.T) {
		r := routerAs(principal(w.volunteer, models.AccountVolunteer), func(r *gin.Engine) {
			r.PATCH("/events/:id", w.authz.RequireEvent(edit), ok)
		})
		rec := serve(r, http.MethodPatch, "/events/"+w.event.ID.String())
		assert.JSONEq(t, `{"success":false,"error":"not authorized"}`, rec.Body.String())
	})

	t.Run("route without an event parameter", func(t *testing.T) {
		r := routerAs(principal(w.owner, models.AccountAdmin), func(r *gin.Engine) {
			r.GET("/dashboard", w.authz.RequireEvent(Requirement{Roles: []models.EventRole{models.EventOrganizer}}), ok)
		})
		rec := serve(r, http.MethodGet, "/dashboard")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("role is stored in context", func(t *testing.T) {
		r := routerAs(principal(w.owner, models.AccountAttendee), func(r *gin.Engine) {
			r.PATCH("/events/:id", w.authz.RequireEvent(edit), ok)
		})
		rec := serve(r, http.MethodPatch, "/events/"+w.event.ID.String())
		assert.Equal(t, "owner", rec.Body.String())
	})
}

func TestCapabilities(t *testing.T) {
	w := newWorld()

	fetch := func(t *testing.T, p *auth.Principal) (int, CapabilitiesResponse) {
		t.Helper()
		r := routerAs(p, func(r *gin.Engine) { r.GET("/events/:id/capabilities", w.authz.Capabilities) })
		rec := serve(r, http.MethodGet, "/events/"+w.event.ID.String()+"/capabilities")
		var body struct {
			Data CapabilitiesResponse `json:"data"`
		}
		if rec.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		}
		return rec.Code, body.Data
	}

	code, caps := fetch(t, principal(w.sponsor, models.AccountSponsor))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.EventSponsor, caps.Role)
	assert.False(t, caps.Capabilities["share_event"])
	assert.True(t, caps.Capabilities["send_messages"])
	assert.True(t, caps.Capabilities["view_schedule"])
	assert.False(t, caps.Capabilities["edit_schedule"])

	code, caps = fetch(t, principal(w.owner, models.AccountAttendee))
	require.Equal(t, http.StatusOK, code)
	assert.True(t, caps.Capabilities["change_visibility"])
	assert.True(t, caps.Capabilities["delete_event"])

	code, caps = fetch(t, principal(w.organizer, models.AccountOrganizer))
	require.Equal(t, http.StatusOK, code)
	assert.False(t, caps.Capabilities["change_visibility"])
	assert.False(t, caps.Capabilities["delete_event"])
	assert.True(t, caps.Capabilities["edit_schedule"])

	code, _ = fetch(t, principal(uuid.New(), models.AccountAttendee))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestManageCollaboratorsAgreesWithService(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	cases := []struct {
		name string
		p    *auth.Principal
		want bool
	}{
		{"owner", principal(w.owner, models.AccountAttendee), true},
		{"organizer", principal(w.organizer, models.AccountOrganizer), true},
		{"volunteer", principal(w.volunteer, models.AccountVolunteer), false},
		{"sponsor", principal(w.sponsor, models.AccountSponsor), false},
		{"global admin with a sponsor record", principal(w.sponsor, models.AccountAdmin), true},
		{"global admin without membership", principal(uuid.New(), models.AccountAdmin), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.authz.Authorize(ctx, tc.p, w.event.ID, ManageCollaborators)
			assert.Equal(t, tc.want, err == nil, "guard: %v", err)
			assert.Equal(t, tc.want, w.eval.CanManageCollaborators(ctx, w.event.ID, tc.p.UserID, tc.p.Role), "service")
		})
	}
}

func TestCapabilitiesForGlobalAdmin(t *testing.T) {
	w := newWorld()
	fetch := func(p *auth.Principal) map[string]bool {
		r := routerAs(p, func(r *gin.Engine) { r.GET("/events/:id/capabilities", w.authz.Capabilities) })
		rec := serve(r, http.MethodGet, "/events/"+w.event.ID.String()+"/capabilities")
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data CapabilitiesResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Data.Capabilities
	}

	caps := fetch(principal(uuid.New(), models.AccountAdmin))
	assert.False(t, caps["change_visibility"], "only the creator changes visibility")
	assert.True(t, caps["manage_collaborators"])
	assert.True(t, caps["delete_event"])

	caps = fetch(principal(w.sponsor, models.AccountAdmin))
	assert.True(t, caps["manage_collaborators"])
	assert.False(t, caps["change_visibility"])
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "allow", outcome(nil))
	assert.Equal(t, "denied", outcome(apperr.ErrPermissionDenied))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}
