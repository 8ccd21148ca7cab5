package repository

import (
	"context"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
)

type paymentIntentRepository struct {
	store Store[models.PaymentIntent]
}

// NewPaymentIntentRepository creates a new payment intent repository instance
func NewPaymentIntentRepository(db *gorm.DB) PaymentIntentRepository {
	return &paymentIntentRepository{store: NewStore[models.PaymentIntent](db)}
}

func (r *paymentIntentRepository) CreateIfAbsent(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	return r.store.CreateIfAbsent(ctx, intent)
}

func (r *paymentIntentRepository) FindOne(ctx context.Context, tenantID, intentID string) (*models.PaymentIntent, error) {
	return r.store.FindOne(ctx, Filter{}.Where("tenant_id = ? AND id = ?", tenantID, intentID))
}
