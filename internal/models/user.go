package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountRole is the global role of a user account. Every user has exactly one.
type AccountRole string

const (
	AccountAdmin     AccountRole = "admin"
	AccountOrganizer AccountRole = "organizer"
	AccountVolunteer AccountRole = "volunteer"
	AccountSponsor   AccountRole = "sponsor"
	AccountAttendee  AccountRole = "attendee"
)

// ParseAccountRole validates a role name.
func ParseAccountRole(s string) (AccountRole, bool) {
	switch r := AccountRole(s); r {
	case AccountAdmin, AccountOrganizer, AccountVolunteer, AccountSponsor, AccountAttendee:
		return r, true
	}
	return "", false
}

// User represents a platform user.
type User struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Password  string      `json:"-"`
	FullName  string      `json:"full_name"`
	Role      AccountRole `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	FullName  string      `json:"full_name"`
	Role      AccountRole `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
