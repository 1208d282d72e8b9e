// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the authorization role assigned to a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the local mirror of an identity-provider account.
//
// Authentication is delegated to an external identity provider, so the
// primary external identifier is the provider's subject id (ExternalID). We
// still generate our own internal string ID (xid) so our primary keys are not
// tied to a third party's numbering scheme.
//
// ExternalID is immutable once created: exactly one User exists per subject
// id, enforced by a UNIQUE index in the store. Concurrent first-time logins
// for the same subject must resolve to a single row (see repository/sqlite).
type User struct {
	ID         string    `json:"id"         db:"id"`
	ExternalID string    `json:"externalId" db:"external_id"` // identity provider subject id
	Email      string    `json:"email"      db:"email"`
	FirstName  string    `json:"firstName"  db:"first_name"` // may be empty
	LastName   string    `json:"lastName"   db:"last_name"`  // may be empty
	AvatarURL  string    `json:"avatarUrl"  db:"avatar_url"`
	Role       Role      `json:"role"       db:"role"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName is the name used for post author snapshots: first + last name,
// falling back to the email address when both are empty.
func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}
