package queue

import "time"

// Event is an outbound audit/notification record. Delivery is at-least-once
// once an event reaches the dispatcher; consumers must tolerate duplicates.
type Event struct {
	Type      string            `json:"type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	At        time.Time         `json:"at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

const (
	EventUserRegistered    = "user.registered"
	EventUserLogin         = "user.login"
	EventUserLogout        = "user.logout"
	EventPasswordChanged   = "user.password_changed"
	EventSessionsRevoked   = "user.sessions_revoked"
	EventRefreshReuse      = "session.refresh_reuse_detected"
	EventPlanUpgraded      = "subscription.upgraded"
	EventQuotaDenied       = "quota.denied"
)
