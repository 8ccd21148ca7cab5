package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
)

type webhookEventRepository struct {
	db    *gorm.DB
	store Store[models.WebhookEvent]
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db, store: NewStore[models.WebhookEvent](db)}
}

// CreateIfAbsent stores the delivery. On a repeated delivery id the stored
// row is loaded into event so the caller can update its outcome.
func (r *webhookEventRepository) CreateIfAbsent(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	created, err := r.store.CreateIfAbsent(ctx, event)
	if err != nil || created {
		return created, err
	}
	stored, err := r.store.FindOne(ctx, Filter{}.
		Where("provider = ? AND delivery_id = ?", event.Provider, event.DeliveryID))
	if err != nil {
		return false, err
	}
	*event = *stored
	return false, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"processing_error": processingError,
	}
	return Classify(r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error)
}
