package repository

import (
	"context"
	"errors"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"

	"gorm.io/gorm"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	CountActiveByUserID(ctx context.Context, userID string) (int64, error)
	Revoke(ctx context.Context, id, userID string) error
}

type GormAPIKeyRepository struct{ db *gorm.DB }

func NewAPIKeyRepository(db *gorm.DB) APIKeyRepository { return &GormAPIKeyRepository{db: db} }

func (r *GormAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	err := r.db.WithContext(ctx).Create(key).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "api_key", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "create", "success")
	return nil
}

func (r *GormAPIKeyRepository) CountActiveByUserID(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "api_key", "count_active_by_user_id", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "count_active_by_user_id", "success")
	return count, nil
}

func (r *GormAPIKeyRepository) Revoke(ctx context.Context, id, userID string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.APIKey{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", id, userID).
		Update("revoked_at", now)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "api_key", "revoke", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "api_key", "revoke", "not_found")
		return ErrAPIKeyNotFound
	}
	observability.RecordRepositoryOperation(ctx, "api_key", "revoke", "success")
	return nil
}
