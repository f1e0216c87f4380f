package repository

import (
	"gorm.io/gorm"

	"github.com/altairlabs/gatekeep/internal/domain"
)

// AutoMigrate creates or updates every table the repositories use. Safe to
// run on every start; gorm only applies the diff.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.UsageRecord{},
		&domain.Subscription{},
		&domain.Payment{},
		&domain.APIKey{},
	)
}
