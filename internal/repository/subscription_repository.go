package repository

import (
	"context"
	"errors"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository interface {
	FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error)
	Upsert(ctx context.Context, sub *domain.Subscription) error
}

type GormSubscriptionRepository struct{ db *gorm.DB }

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

func (r *GormSubscriptionRepository) FindByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "subscription", "find_by_user_id", "not_found")
			return nil, ErrSubscriptionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "subscription", "find_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "subscription", "find_by_user_id", "success")
	return &sub, nil
}

// Upsert replaces the user's single subscription row, keeping the
// one-active-subscription-per-user invariant in the schema itself.
func (r *GormSubscriptionRepository) Upsert(ctx context.Context, sub *domain.Subscription) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan", "status", "period_start", "period_end",
			"request_limit", "api_key_limit", "rate_limit_per_min", "updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "subscription", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "subscription", "upsert", "success")
	return nil
}
