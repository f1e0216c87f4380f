package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/repository"
)

// UsageDelta is one billable operation's consumption.
type UsageDelta struct {
	Requests     int64  `json:"requests"`
	ComputeUnits int64  `json:"compute_units"`
	Operation    string `json:"operation,omitempty"`
}

// ReconciliationPolicy names the tie-break between the counter tier and the
// durable ledger. Display reads take the max of the two (the counter is
// usually fresher, the ledger is the floor under eviction); billing
// enforcement trusts the ledger alone.
type ReconciliationPolicy struct {
	DisplayTakesMax    bool
	EnforceFromDurable bool
}

var DefaultReconciliation = ReconciliationPolicy{DisplayTakesMax: true, EnforceFromDurable: true}

type UsageMeter struct {
	usageRepo  repository.UsageRepository
	counters   UsageCounterStore
	policy     ReconciliationPolicy
	counterTTL time.Duration
}

func NewUsageMeter(usageRepo repository.UsageRepository, counters UsageCounterStore, policy ReconciliationPolicy, counterTTL time.Duration) *UsageMeter {
	return &UsageMeter{
		usageRepo:  usageRepo,
		counters:   counters,
		policy:     policy,
		counterTTL: counterTTL,
	}
}

// Record bumps the cache counters and appends a ledger row. The two writes
// are deliberately not transactional: the counter exists for cheap reads,
// the ledger is the billing source of truth. A counter failure is logged
// and swallowed; a ledger failure is returned.
func (m *UsageMeter) Record(ctx context.Context, userID, periodKey string, delta UsageDelta) error {
	if delta.Requests < 0 || delta.ComputeUnits < 0 {
		return ErrValidation
	}
	if delta.Requests == 0 && delta.ComputeUnits == 0 {
		return nil
	}

	if err := m.counters.Incr(ctx, userID, periodKey, delta.Requests, delta.ComputeUnits, m.counterTTL); err != nil {
		slog.WarnContext(ctx, "usage counter increment failed, ledger remains authoritative", "error", err)
		observability.RecordCacheDegraded(ctx, "usage_counters")
	}

	err := m.usageRepo.Append(ctx, &domain.UsageRecord{
		UserID:       userID,
		PeriodKey:    periodKey,
		Requests:     delta.Requests,
		ComputeUnits: delta.ComputeUnits,
		Operation:    delta.Operation,
	})
	if err != nil {
		observability.RecordUsageEvent(ctx, "ledger", "error")
		return err
	}
	observability.RecordUsageEvent(ctx, "ledger", "success")
	return nil
}

// Current is the display read: per-field max of counter and ledger under
// the default policy. With the counter tier down it degrades to the ledger
// alone, which may undercount briefly but never over-reports.
func (m *UsageMeter) Current(ctx context.Context, userID, periodKey string) (domain.UsageTotals, error) {
	durable, err := m.usageRepo.AggregateForPeriod(ctx, userID, periodKey)
	if err != nil {
		return domain.UsageTotals{}, err
	}

	cached, err := m.counters.Get(ctx, userID, periodKey)
	if err != nil {
		slog.WarnContext(ctx, "usage counter read failed, serving ledger aggregate", "error", err)
		observability.RecordCacheDegraded(ctx, "usage_counters")
		return durable, nil
	}

	if !m.policy.DisplayTakesMax {
		return durable, nil
	}
	return domain.UsageTotals{
		Requests:     max64(durable.Requests, cached.Requests),
		ComputeUnits: max64(durable.ComputeUnits, cached.ComputeUnits),
	}, nil
}

// BillableUsage is the enforcement read: ledger only, fail closed.
func (m *UsageMeter) BillableUsage(ctx context.Context, userID, periodKey string) (domain.UsageTotals, error) {
	if !m.policy.EnforceFromDurable {
		return m.Current(ctx, userID, periodKey)
	}
	return m.usageRepo.AggregateForPeriod(ctx, userID, periodKey)
}

// Overage is the billable excess beyond a plan limit.
type Overage struct {
	Count     int64 `json:"count"`
	CostCents int64 `json:"cost_cents"`
}

// ComputeOverage treats the -1 sentinel as unlimited.
func ComputeOverage(used, limit, unitPriceCents int64) Overage {
	if limit == domain.UnlimitedLimit {
		return Overage{}
	}
	over := used - limit
	if over <= 0 {
		return Overage{}
	}
	return Overage{Count: over, CostCents: over * unitPriceCents}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
