package repository

import (
	"context"
	"testing"

	"github.com/altairlabs/gatekeep/internal/domain"
)

func TestUsageRepositoryAggregateForPeriod(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))
	ctx := context.Background()

	records := []*domain.UsageRecord{
		{UserID: "user-1", PeriodKey: "2026-09", Requests: 10, ComputeUnits: 3},
		{UserID: "user-1", PeriodKey: "2026-09", Requests: 5, ComputeUnits: 1},
		{UserID: "user-1", PeriodKey: "2026-08", Requests: 100, ComputeUnits: 50},
		{UserID: "user-2", PeriodKey: "2026-09", Requests: 7, ComputeUnits: 2},
	}
	for _, rec := range records {
		if err := repo.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	totals, err := repo.AggregateForPeriod(ctx, "user-1", "2026-09")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if totals.Requests != 15 || totals.ComputeUnits != 4 {
		t.Fatalf("expected 15 requests / 4 compute units, got %+v", totals)
	}
}

func TestUsageRepositoryAggregateEmptyPeriodIsZero(t *testing.T) {
	repo := NewUsageRepository(newTestDB(t))

	totals, err := repo.AggregateForPeriod(context.Background(), "user-1", "2026-09")
	if err != nil {
		t.Fatalf("aggregate empty period: %v", err)
	}
	if totals.Requests != 0 || totals.ComputeUnits != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
}
