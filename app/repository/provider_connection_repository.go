package repository

import (
	"context"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type providerConnectionRepository struct {
	db    *gorm.DB
	store Store[models.ProviderConnection]
}

// NewProviderConnectionRepository creates a new provider connection repository instance
func NewProviderConnectionRepository(db *gorm.DB) ProviderConnectionRepository {
	return &providerConnectionRepository{db: db, store: NewStore[models.ProviderConnection](db)}
}

// Upsert writes the connection; a reconnect overwrites the previous tokens.
func (r *providerConnectionRepository) Upsert(ctx context.Context, conn *models.ProviderConnection) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "provider"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_user_id",
			"access_token_enc",
			"refresh_token_enc",
			"expires_at",
			"connected_at",
			"updated_at",
		}),
	}).Create(conn).Error; err != nil {
		return Classify(err)
	}

	// Ensure ID is populated after upsert.
	stored, err := r.FindOne(ctx, conn.TenantID, conn.Provider)
	if err != nil {
		return err
	}
	*conn = *stored
	return nil
}

func (r *providerConnectionRepository) FindOne(ctx context.Context, tenantID, provider string) (*models.ProviderConnection, error) {
	return r.store.FindOne(ctx, Filter{}.Where("tenant_id = ? AND provider = ?", tenantID, provider))
}
