package guard

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventdesk/backend/internal/access"
	"github.com/eventdesk/backend/internal/auth"
	"github.com/eventdesk/backend/internal/models"
	"github.com/eventdesk/backend/pkg/response"
)

// Affordances are the UI controls a client may render for an event, keyed by name.
var Affordances = map[string]Requirement{
	"edit_event":           {EventPermissions: []access.EventPermission{access.EventEdit}},
	"delete_event":         {EventPermissions: []access.EventPermission{access.EventDelete}},
	"share_event":          {EventPermissions: []access.EventPermission{access.EventShare}},
	"change_visibility":    {Roles: []models.EventRole{models.EventOwner}},
	"manage_collaborators": ManageCollaborators,
	"manage_volunteers":    {EventPermissions: []access.EventPermission{access.EventManageVolunteers}},
	"manage_sponsors":      {EventPermissions: []access.EventPermission{access.EventManageSponsors}},
	"view_analytics":       {EventPermissions: []access.EventPermission{access.EventViewAnalytics}},
	"send_messages":        {EventPermissions: []access.EventPermission{access.EventSendMessages}},
	"resolve_threads":      {EventPermissions: []access.EventPermission{access.EventResolveThreads}},
	"edit_schedule":        {Permissions: []access.Permission{access.MustPermission(access.ResourceSchedule, access.ActionWrite)}, Roles: []models.EventRole{models.EventOrganizer}},
	"view_schedule":        {Permissions: []access.Permission{access.MustPermission(access.ResourceSchedule, access.ActionRead)}, EventPermissions: []access.EventPermission{access.EventView}},
	"update_deliverables":  {Permissions: []access.Permission{access.MustPermission(access.ResourceDeliverables, access.ActionWrite)}, EventPermissions: []access.EventPermission{access.EventView}},
	"manage_infrastructure": {
		Permissions:      []access.Permission{access.MustPermission(access.ResourceInfrastructure, access.ActionWrite)},
		EventPermissions: []access.EventPermission{access.EventView},
	},
}

// CapabilitiesResponse is returned by GET /events/:id/capabilities.
type CapabilitiesResponse struct {
	EventID      uuid.UUID        `json:"event_id"`
	Role         models.EventRole `json:"role"`
	Capabilities map[string]bool  `json:"capabilities"`
}

// Capabilities reports which affordances the caller may use. Events the caller cannot see
// are 404.
func (a *Authorizer) Capabilities(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	p := auth.CurrentPrincipal(c)
	ctx := c.Request.Context()
	_, role, err := a.ViewEvent(ctx, p, eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := CapabilitiesResponse{EventID: eventID, Role: role, Capabilities: make(map[string]bool, len(Affordances))}
	for name, req := range Affordances {
		out.Capabilities[name] = a.Visible(ctx, p, eventID, req)
	}
	response.OK(c, out)
}
