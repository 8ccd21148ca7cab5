package repository

import (
	"context"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
)

// memberRepository implements the MemberRepository interface
type memberRepository struct {
	db    *gorm.DB
	store Store[models.Member]
}

// NewMemberRepository creates a new member repository instance
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db, store: NewStore[models.Member](db)}
}

func (r *memberRepository) CreateIfAbsent(ctx context.Context, member *models.Member) (bool, error) {
	return r.store.CreateIfAbsent(ctx, member)
}

// FindInTenant returns ErrNotFound when the member exists under another tenant.
func (r *memberRepository) FindInTenant(ctx context.Context, tenantID, memberID string) (*models.Member, error) {
	return r.store.FindOne(ctx, Filter{}.Where("tenant_id = ? AND id = ?", tenantID, memberID))
}

func (r *memberRepository) FindBillable(ctx context.Context, tenantID string) ([]models.Member, error) {
	f := Filter{}.Where("tenant_id = ? AND status IN ?", tenantID,
		[]string{models.MemberStatusActive, models.MemberStatusSuspended})
	f.Order = "id ASC"
	return r.store.FindMany(ctx, f)
}

func (r *memberRepository) SetStatus(ctx context.Context, tenantID, memberID, status string) error {
	tx := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("tenant_id = ? AND id = ?", tenantID, memberID).
		Update("status", status)
	if tx.Error != nil {
		return Classify(tx.Error)
	}
	return nil
}
