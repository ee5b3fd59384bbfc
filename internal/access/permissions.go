// Package access holds the role/permission tables and the event role evaluator.
package access

import (
	"fmt"
	"strings"

	"github.com/eventdesk/backend/internal/models"
)

// Resource is a guarded area of an event's logistics.
type Resource string

const (
	ResourceSchedule       Resource = "schedule"
	ResourceVolunteers     Resource = "volunteers"
	ResourceDeliverables   Resource = "deliverables"
	ResourceSponsors       Resource = "sponsors"
	ResourceAccommodations Resource = "accommodations"
	ResourceFoodService    Resource = "foodService"
	ResourceInfrastructure Resource = "infrastructure"
	ResourceAnalytics      Resource = "analytics"
	ResourceUserManagement Resource = "userManagement"
	ResourceEventShare     Resource = "eventShare"
	ResourceEventEdit      Resource = "eventEdit"
)

// Resources lists every known resource.
var Resources = []Resource{
	ResourceSchedule, ResourceVolunteers, ResourceDeliverables, ResourceSponsors,
	ResourceAccommodations, ResourceFoodService, ResourceInfrastructure, ResourceAnalytics,
	ResourceUserManagement, ResourceEventShare, ResourceEventEdit,
}

// Action is read or write. Write implies read.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Permission is a validated (resource, action) pair.
type Permission struct {
	Resource Resource
	Action   Action
}

func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// NewPermission validates both halves of a permission.
func NewPermission(resource Resource, action Action) (Permission, error) {
	if !knownResource(resource) {
		return Permission{}, fmt.Errorf("unknown resource %q", resource)
	}
	if action != ActionRead && action != ActionWrite {
		return Permission{}, fmt.Errorf("unknown action %q", action)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// MustPermission is NewPermission for static declarations.
func MustPermission(resource Resource, action Action) Permission {
	p, err := NewPermission(resource, action)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePermission parses "resource:action", splitting on the first colon.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok {
		return Permission{}, fmt.Errorf("permission %q: missing ':'", s)
	}
	return NewPermission(Resource(resource), Action(action))
}

func knownResource(r Resource) bool {
	for _, k := range Resources {
		if k == r {
			return true
		}
	}
	return false
}

// rolePermissions is the highest action each account role holds per resource.
// A missing entry means no access.
var rolePermissions = map[models.AccountRole]map[Resource]Action{
	models.AccountAdmin: {
		ResourceSchedule:       ActionWrite,
		ResourceVolunteers:     ActionWrite,
		ResourceDeliverables:   ActionWrite,
		ResourceSponsors:       ActionWrite,
		ResourceAccommodations: ActionWrite,
		ResourceFoodService:    ActionWrite,
		ResourceInfrastructure: ActionWrite,
		ResourceAnalytics:      ActionWrite,
		ResourceUserManagement: ActionWrite,
		ResourceEventShare:     ActionWrite,
		ResourceEventEdit:      ActionWrite,
	},
	models.AccountOrganizer: {
		ResourceSchedule:       ActionWrite,
		ResourceVolunteers:     ActionWrite,
		ResourceDeliverables:   ActionWrite,
		ResourceSponsors:       ActionWrite,
		ResourceAccommodations: ActionWrite,
		ResourceFoodService:    ActionWrite,
		ResourceInfrastructure: ActionWrite,
		ResourceAnalytics:      ActionRead,
		ResourceUserManagement: ActionRead,
		ResourceEventShare:     ActionWrite,
		ResourceEventEdit:      ActionWrite,
	},
	models.AccountVolunteer: {
		ResourceSchedule:       ActionRead,
		ResourceVolunteers:     ActionRead,
		ResourceDeliverables:   ActionWrite,
		ResourceAccommodations: ActionRead,
		ResourceFoodService:    ActionRead,
		ResourceInfrastructure: ActionRead,
	},
	models.AccountSponsor: {
		ResourceSchedule:     ActionRead,
		ResourceDeliverables: ActionRead,
		ResourceSponsors:     ActionWrite,
		ResourceAnalytics:    ActionRead,
	},
	models.AccountAttendee: {
		ResourceSchedule:       ActionRead,
		ResourceAccommodations: ActionRead,
		ResourceFoodService:    ActionRead,
	},
}

// CheckPermission reports whether role may perform action on resource.
// Unknown roles, resources and actions are denied.
func CheckPermission(role models.AccountRole, resource Resource, action Action) bool {
	granted, ok := rolePermissions[role][resource]
	if !ok {
		return false
	}
	switch action {
	case ActionRead:
		return granted == ActionRead || granted == ActionWrite
	case ActionWrite:
		return granted == ActionWrite
	}
	return false
}

// Allows is CheckPermission for a structured permission.
func Allows(role models.AccountRole, p Permission) bool {
	return CheckPermission(role, p.Resource, p.Action)
}

// HasAllPermissions is true when every permission passes. An empty list passes.
func HasAllPermissions(role models.AccountRole, perms ...Permission) bool {
	for _, p := range perms {
		if !Allows(role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermission is true when at least one permission passes.
func HasAnyPermission(role models.AccountRole, perms ...Permission) bool {
	for _, p := range perms {
		if Allows(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissionStrings is HasAllPermissions over "resource:action" strings.
// A malformed entry fails the check.
func HasAllPermissionStrings(role models.AccountRole, perms ...string) bool {
	for _, s := range perms {
		p, err := ParsePermission(s)
		if err != nil || !Allows(role, p) {
			return false
		}
	}
	return true
}

// HasAnyPermissionStrings is HasAnyPermission over "resource:action" strings.
// Malformed entries never match.
func HasAnyPermissionStrings(role models.AccountRole, perms ...string) bool {
	for _, s := range perms {
		if p, err := ParsePermission(s); err == nil && Allows(role, p) {
			return true
		}
	}
	return false
}

// RolePermissions returns the effective permissions of a role, for display.
func RolePermissions(role models.AccountRole) []Permission {
	var out []Permission
	for _, r := range Resources {
		if granted, ok := rolePermissions[role][r]; ok {
			out = append(out, Permission{Resource: r, Action: granted})
		}
	}
	return out
}
