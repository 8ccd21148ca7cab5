package repository

import (
	"context"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentConfigRepository struct {
	db      *gorm.DB
	configs Store[models.PaymentConfig]
	fees    Store[models.CategoryFee]
}

// NewPaymentConfigRepository creates a new payment config repository instance
func NewPaymentConfigRepository(db *gorm.DB) PaymentConfigRepository {
	return &paymentConfigRepository{
		db:      db,
		configs: NewStore[models.PaymentConfig](db),
		fees:    NewStore[models.CategoryFee](db),
	}
}

func (r *paymentConfigRepository) FindConfig(ctx context.Context, tenantID string) (*models.PaymentConfig, error) {
	return r.configs.FindOne(ctx, Filter{}.Where("tenant_id = ?", tenantID))
}

// SaveConfig replaces the tenant configuration.
func (r *paymentConfigRepository) SaveConfig(ctx context.Context, cfg *models.PaymentConfig) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"amount",
			"currency",
			"due_day_of_month",
			"updated_at",
		}),
	}).Create(cfg).Error
	return Classify(err)
}

func (r *paymentConfigRepository) FindCategoryFee(ctx context.Context, tenantID, categoryID string) (*models.CategoryFee, error) {
	return r.fees.FindOne(ctx, Filter{}.Where("tenant_id = ? AND category_id = ?", tenantID, categoryID))
}
