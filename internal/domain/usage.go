package domain

import "time"

// UsageRecord is an append-only ledger row. The per-period aggregate over
// these rows is the billing source of truth; the Redis counters layered on
// top only exist for low-latency reads.
type UsageRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"size:36;index:idx_usage_user_period,priority:1;not null" json:"user_id"`
	PeriodKey    string    `gorm:"size:7;index:idx_usage_user_period,priority:2;not null" json:"period_key"`
	Requests     int64     `gorm:"not null" json:"requests"`
	ComputeUnits int64     `gorm:"not null" json:"compute_units"`
	Operation    string    `gorm:"size:64" json:"operation"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageTotals is the aggregate view for one (user, period) pair.
type UsageTotals struct {
	Requests     int64 `json:"requests"`
	ComputeUnits int64 `json:"compute_units"`
}

// PeriodKey buckets usage by calendar month in UTC. A new month means a new
// key, so counters reset by rollover rather than by mutation.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
