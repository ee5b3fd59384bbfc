package access

import "github.com/eventdesk/backend/internal/models"

// EventPermission is a capability scoped to a single event.
type EventPermission string

const (
	EventView                EventPermission = "EVENT_VIEW"
	EventEdit                EventPermission = "EVENT_EDIT"
	EventShare               EventPermission = "EVENT_SHARE"
	EventDelete              EventPermission = "EVENT_DELETE"
	EventManageCollaborators EventPermission = "MANAGE_COLLABORATORS"
	EventManageVolunteers    EventPermission = "MANAGE_VOLUNTEERS"
	EventManageSponsors      EventPermission = "MANAGE_SPONSORS"
	EventViewAnalytics       EventPermission = "VIEW_ANALYTICS"
	EventSendMessages        EventPermission = "SEND_MESSAGES"
	EventResolveThreads      EventPermission = "RESOLVE_THREADS"
)

var allEventPermissions = []EventPermission{
	EventView, EventEdit, EventShare, EventDelete, EventManageCollaborators,
	EventManageVolunteers, EventManageSponsors, EventViewAnalytics, EventSendMessages,
	EventResolveThreads,
}

var eventRolePermissions = map[models.EventRole][]EventPermission{
	models.EventOwner: allEventPermissions,
	models.EventAdmin: allEventPermissions,
	models.EventOrganizer: {
		EventView, EventEdit, EventShare, EventManageCollaborators, EventManageVolunteers,
		EventManageSponsors, EventViewAnalytics, EventSendMessages, EventResolveThreads,
	},
	models.EventVolunteer: {EventView, EventSendMessages},
	models.EventSponsor:   {EventView, EventSendMessages},
	models.EventViewer:    {EventView},
}

// HasEventPermission reports whether an event role holds perm. Unknown roles are denied.
func HasEventPermission(role models.EventRole, perm EventPermission) bool {
	for _, p := range eventRolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// EventRolePermissions returns the event permissions of a role.
func EventRolePermissions(role models.EventRole) []EventPermission {
	return append([]EventPermission(nil), eventRolePermissions[role]...)
}

// CanView applies the event's visibility to a resolved role. Any role other than viewer
// comes from membership, ownership or admin and always sees the event.
func CanView(event *models.Event, role models.EventRole, isOrgMember bool) bool {
	if role != models.EventViewer && role != "" {
		return true
	}
	switch event.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityOrganization:
		return event.OrganizationID != nil && isOrgMember
	}
	return false
}
