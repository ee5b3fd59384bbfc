package models

import (
	"time"

	"github.com/google/uuid"
)

// EventRole is a user's role within one event. A user holds at most one per event.
type EventRole string

const (
	EventOwner     EventRole = "owner"
	EventOrganizer EventRole = "organizer"
	EventVolunteer EventRole = "volunteer"
	EventSponsor   EventRole = "sponsor"
	EventViewer    EventRole = "viewer"
	// EventAdmin is never stored; the evaluator yields it for global admins with no event membership.
	EventAdmin EventRole = "admin"
)

// ParseEventRole validates an event role name, including the evaluator-only admin value.
func ParseEventRole(s string) (EventRole, bool) {
	switch r := EventRole(s); r {
	case EventOwner, EventOrganizer, EventVolunteer, EventSponsor, EventViewer, EventAdmin:
		return r, true
	}
	return "", false
}

// Assignable reports whether the role can be stored on a collaborator record or an invite.
func (r EventRole) Assignable() bool {
	switch r {
	case EventOrganizer, EventVolunteer, EventSponsor, EventViewer:
		return true
	}
	return false
}

// OrganizerLevel reports whether the role carries organizer authority (owner and admin included).
func (r EventRole) OrganizerLevel() bool {
	return r == EventOwner || r == EventOrganizer || r == EventAdmin
}

// AccountEquivalent maps an event role onto the account role table used for resource checks.
func (r EventRole) AccountEquivalent() AccountRole {
	switch r {
	case EventOwner, EventOrganizer:
		return AccountOrganizer
	case EventVolunteer:
		return AccountVolunteer
	case EventSponsor:
		return AccountSponsor
	case EventAdmin:
		return AccountAdmin
	}
	return AccountAttendee
}

// Visibility controls who can see an event.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityOrganization || v == VisibilityPublic
}

// EventStatus is the soft lifecycle state of an event. Events are never hard-deleted.
type EventStatus string

const (
	EventStatusPlanning  EventStatus = "planning"
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPlanning, EventStatusActive, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

// Event is a logistics event. Organizers, Volunteers and Sponsors are denormalized id lists
// rebuilt from collaborator records on every collaborator write.
type Event struct {
	ID             uuid.UUID   `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	StartsAt       time.Time   `json:"starts_at"`
	EndsAt         *time.Time  `json:"ends_at,omitempty"`
	Status         EventStatus `json:"status"`
	Visibility     Visibility  `json:"visibility"`
	CreatedBy      uuid.UUID   `json:"created_by"`
	OrganizationID *uuid.UUID  `json:"organization_id,omitempty"`
	Organizers     []uuid.UUID `json:"organizers"`
	Volunteers     []uuid.UUID `json:"volunteers"`
	Sponsors       []uuid.UUID `json:"sponsors"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Collaborator links a user to an event with a role.
type Collaborator struct {
	EventID  uuid.UUID `json:"event_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     EventRole `json:"role"`
	Email    string    `json:"email,omitempty"`
	FullName string    `json:"full_name,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// Invite is a single-use, time-bounded link that adds one collaborator at one role.
type Invite struct {
	ID        uuid.UUID  `json:"id"`
	EventID   uuid.UUID  `json:"event_id"`
	Role      EventRole  `json:"role"`
	Token     string     `json:"-"`
	CreatedBy uuid.UUID  `json:"created_by"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Usable reports whether the invite can still be redeemed at now.
func (i *Invite) Usable(now time.Time) bool {
	return i.UsedAt == nil && now.Before(i.ExpiresAt)
}
