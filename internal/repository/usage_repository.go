package repository

import (
	"context"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"

	"gorm.io/gorm"
)

type UsageRepository interface {
	Append(ctx context.Context, rec *domain.UsageRecord) error
	AggregateForPeriod(ctx context.Context, userID, periodKey string) (domain.UsageTotals, error)
}

type GormUsageRepository struct{ db *gorm.DB }

func NewUsageRepository(db *gorm.DB) UsageRepository { return &GormUsageRepository{db: db} }

func (r *GormUsageRepository) Append(ctx context.Context, rec *domain.UsageRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "usage", "append", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "usage", "append", "success")
	return nil
}

// AggregateForPeriod sums the ledger; a period with no rows aggregates to
// zero rather than not-found.
func (r *GormUsageRepository) AggregateForPeriod(ctx context.Context, userID, periodKey string) (domain.UsageTotals, error) {
	var totals domain.UsageTotals
	err := r.db.WithContext(ctx).Model(&domain.UsageRecord{}).
		Select("COALESCE(SUM(requests), 0) AS requests, COALESCE(SUM(compute_units), 0) AS compute_units").
		Where("user_id = ? AND period_key = ?", userID, periodKey).
		Scan(&totals).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "usage", "aggregate_for_period", "error")
		return domain.UsageTotals{}, err
	}
	observability.RecordRepositoryOperation(ctx, "usage", "aggregate_for_period", "success")
	return totals, nil
}
