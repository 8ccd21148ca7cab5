package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
)

type emailEventRepository struct {
	store Store[models.EmailEvent]
}

// NewEmailEventRepository creates a new email event repository instance
func NewEmailEventRepository(db *gorm.DB) EmailEventRepository {
	return &emailEventRepository{store: NewStore[models.EmailEvent](db)}
}

func (r *emailEventRepository) CreateIfAbsent(ctx context.Context, event *models.EmailEvent) (bool, error) {
	return r.store.CreateIfAbsent(ctx, event)
}

func (r *emailEventRepository) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	_, err := r.store.FindOne(ctx, Filter{}.Where("idempotency_key = ?", idempotencyKey))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
