package domain

import "time"

// Session is the durable root of trust a refresh token is checked against.
// Exactly one RefreshTokenID is valid per session at a time; a presented
// refresh token carrying any other id is treated as a theft signal.
// Rows are revoked, never deleted, so the login history stays auditable.
type Session struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         string     `gorm:"size:36;index;not null" json:"user_id"`
	RefreshTokenID string     `gorm:"size:36;uniqueIndex;not null" json:"-"`
	UserAgent      string     `gorm:"size:512" json:"user_agent"`
	IP             string     `gorm:"size:64" json:"ip"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	RevokedAt      *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason  *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SessionProjection is the cacheable read model served on the validate path.
type SessionProjection struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	RefreshTokenID string    `json:"refresh_token_id"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (s *Session) Projection() *SessionProjection {
	return &SessionProjection{
		ID:             s.ID,
		UserID:         s.UserID,
		RefreshTokenID: s.RefreshTokenID,
		ExpiresAt:      s.ExpiresAt,
	}
}
