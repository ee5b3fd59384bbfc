package models

import (
	"time"

	"github.com/google/uuid"
)

// ThreadStatus is the state of a message thread.
type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
)

// RecipientType selects how a thread's recipients are chosen.
type RecipientType string

const (
	RecipientSpecificUser  RecipientType = "SPECIFIC_USER"
	RecipientAllOrganizers RecipientType = "ALL_ORGANIZERS"
	RecipientAllVolunteers RecipientType = "ALL_VOLUNTEERS"
	RecipientOrganizerTeam RecipientType = "ORGANIZER_TEAM"
)

// Valid reports whether t is a known recipient type.
func (t RecipientType) Valid() bool {
	switch t {
	case RecipientSpecificUser, RecipientAllOrganizers, RecipientAllVolunteers, RecipientOrganizerTeam:
		return true
	}
	return false
}

// Thread is a conversation within an event. Recipients is the id list resolved at creation;
// it is never re-resolved from the event's team lists.
type Thread struct {
	ID             uuid.UUID         `json:"id"`
	EventID        uuid.UUID         `json:"event_id"`
	Subject        string            `json:"subject"`
	CreatedBy      uuid.UUID         `json:"created_by"`
	CreatedByName  string            `json:"created_by_name"`
	CreatorRole    EventRole         `json:"creator_role"`
	RecipientType  RecipientType     `json:"recipient_type"`
	Recipients     []uuid.UUID       `json:"recipients"`
	Status         ThreadStatus      `json:"status"`
	ResolvedBy     *uuid.UUID        `json:"resolved_by,omitempty"`
	ResolvedByName string            `json:"resolved_by_name,omitempty"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
	LastMessageAt  time.Time         `json:"last_message_at"`
	UnreadCount    map[uuid.UUID]int `json:"unread_count"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Participants returns the creator followed by the recipients, without duplicates.
func (t *Thread) Participants() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(t.Recipients)+1)
	seen := make(map[uuid.UUID]struct{}, len(t.Recipients)+1)
	for _, id := range append([]uuid.UUID{t.CreatedBy}, t.Recipients...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsParticipant reports whether userID created or receives the thread.
func (t *Thread) IsParticipant(userID uuid.UUID) bool {
	if t.CreatedBy == userID {
		return true
	}
	for _, id := range t.Recipients {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is an immutable entry in a thread.
type Message struct {
	ID            uuid.UUID `json:"id"`
	ThreadID      uuid.UUID `json:"thread_id"`
	EventID       uuid.UUID `json:"event_id"`
	Seq           int64     `json:"seq"` // 1-based, contiguous within the thread
	SenderID      uuid.UUID `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	Content       string    `json:"content"`
	AttachmentKey string    `json:"attachment_key,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
