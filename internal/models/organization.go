package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization groups users; events with organization visibility are visible to its members.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Organization member roles.
const (
	OrgRoleOwner  = "owner"
	OrgRoleMember = "member"
)

// NotificationKind identifies what a notification is about.
const (
	NotificationThreadCreated     = "thread_created"
	NotificationThreadMessage     = "thread_message"
	NotificationCollaboratorAdded = "collaborator_added"
)

// NotificationStatus for delivery.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// NotificationLog records a notification delivered (or attempted) to a user.
type NotificationLog struct {
	ID           uuid.UUID  `json:"id"`
	EventID      uuid.UUID  `json:"event_id"`
	ThreadID     *uuid.UUID `json:"thread_id,omitempty"`
	UserID       uuid.UUID  `json:"user_id"`
	Kind         string     `json:"kind"`
	Subject      string     `json:"subject,omitempty"`
	Preview      string     `json:"preview,omitempty"`
	Attempts     int        `json:"attempts"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
