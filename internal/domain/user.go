package domain

import "time"

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusSuspended:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleAdmin:
		return true
	}
	return false
}

// User rows are soft-state only: suspension flips Status, nothing is deleted.
type User struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash  *string    `gorm:"size:128" json:"-"`
	Name          string     `gorm:"size:255" json:"name"`
	Status        UserStatus `gorm:"size:16;not null;default:active" json:"status"`
	Role          UserRole   `gorm:"size:16;not null;default:user" json:"role"`
	OAuthProvider *string    `gorm:"size:32;index:idx_users_oauth,priority:1" json:"-"`
	OAuthSubject  *string    `gorm:"size:255;index:idx_users_oauth,priority:2" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (u *User) Suspended() bool { return u.Status == UserStatusSuspended }
