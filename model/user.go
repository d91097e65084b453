package model

import "time"

// Role is a user's authorization role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a user in the system.
type User struct {
	ID             int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name           string    `json:"name" gorm:"size:100;not null"`
	Email          string    `json:"email" gorm:"size:255;not null;uniqueIndex"`
	PasswordHash   string    `json:"-" gorm:"column:password_hash;size:255;not null"` // Not exposed in API responses
	Role           Role      `json:"role" gorm:"size:16;not null;default:user"`
	ProfilePicture string    `json:"profilePicture,omitempty" gorm:"column:profile_picture;size:767"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
