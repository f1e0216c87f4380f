package domain

import "time"

type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanStarter    PlanType = "starter"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

// Entitled reports whether the subscription currently grants plan limits.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderPaypal PaymentProvider = "paypal"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case PaymentProviderStripe, PaymentProviderPaypal:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// UnlimitedLimit is the sentinel for plan limits with no ceiling.
const UnlimitedLimit int64 = -1

// Subscription holds the plan limits quota enforcement reads. At most one row
// per user; upgrades replace the row via upsert rather than appending.
type Subscription struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	UserID          string             `gorm:"size:36;uniqueIndex;not null" json:"user_id"`
	Plan            PlanType           `gorm:"size:16;not null" json:"plan"`
	Status          SubscriptionStatus `gorm:"size:16;not null" json:"status"`
	PeriodStart     time.Time          `json:"period_start"`
	PeriodEnd       time.Time          `json:"period_end"`
	RequestLimit    int64              `gorm:"not null" json:"request_limit"`
	APIKeyLimit     int64              `gorm:"not null" json:"api_key_limit"`
	RateLimitPerMin int64              `gorm:"not null" json:"rate_limit_per_min"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// PlanLimits returns the default limits for a plan.
func PlanLimits(p PlanType) (requests, apiKeys, ratePerMin int64) {
	switch p {
	case PlanStarter:
		return 1_000_000, 5, 300
	case PlanPro:
		return 10_000_000, 25, 1_000
	case PlanEnterprise:
		return UnlimitedLimit, UnlimitedLimit, UnlimitedLimit
	default:
		return 10_000, 2, 60
	}
}

// Payment mirrors the provider-side payment record written by the billing
// webhook subsystem. Quota upgrades require Status == completed.
type Payment struct {
	ID          string          `gorm:"primaryKey;size:64" json:"id"`
	UserID      string          `gorm:"size:36;index;not null" json:"user_id"`
	Provider    PaymentProvider `gorm:"size:16;not null" json:"provider"`
	Status      PaymentStatus   `gorm:"size:16;not null" json:"status"`
	Plan        PlanType        `gorm:"size:16;not null" json:"plan"`
	AmountCents int64           `gorm:"not null" json:"amount_cents"`
	Currency    string          `gorm:"size:8;not null;default:usd" json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// APIKey tracks issued platform keys; the active count feeds quota checks.
type APIKey struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"size:36;index;not null" json:"user_id"`
	Name      string     `gorm:"size:128" json:"name"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
