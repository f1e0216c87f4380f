package repository

import (
	"context"
	"errors"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/observability"

	"gorm.io/gorm"
)

var ErrPaymentNotFound = errors.New("payment not found")

// PaymentRepository is read-only from this core's perspective; rows are
// written by the billing webhook subsystem.
type PaymentRepository interface {
	FindByIDForUser(ctx context.Context, paymentID, userID string) (*domain.Payment, error)
	Create(ctx context.Context, p *domain.Payment) error
}

type GormPaymentRepository struct{ db *gorm.DB }

func NewPaymentRepository(db *gorm.DB) PaymentRepository { return &GormPaymentRepository{db: db} }

func (r *GormPaymentRepository) FindByIDForUser(ctx context.Context, paymentID, userID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", paymentID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "payment", "find_by_id_for_user", "not_found")
			return nil, ErrPaymentNotFound
		}
		observability.RecordRepositoryOperation(ctx, "payment", "find_by_id_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "payment", "find_by_id_for_user", "success")
	return &p, nil
}

func (r *GormPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "payment", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "payment", "create", "success")
	return nil
}
