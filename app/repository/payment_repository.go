package repository

import (
	"context"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
)

type paymentRepository struct {
	store Store[models.Payment]
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{store: NewStore[models.Payment](db)}
}

// CreateIfAbsent inserts the payment unless the provider payment id or the
// approval key already exists.
func (r *paymentRepository) CreateIfAbsent(ctx context.Context, payment *models.Payment) (bool, error) {
	payment.SealApproval()
	return r.store.CreateIfAbsent(ctx, payment)
}

func (r *paymentRepository) FindApproved(ctx context.Context, tenantID, memberID, period string) (*models.Payment, error) {
	return r.store.FindOne(ctx, Filter{}.
		Where("approval_key = ?", models.ApprovalKey(tenantID, memberID, period)))
}

func (r *paymentRepository) FindByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*models.Payment, error) {
	return r.store.FindOne(ctx, Filter{}.
		Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID))
}

func (r *paymentRepository) FindMany(ctx context.Context, q PaymentQuery) ([]models.Payment, error) {
	f := paymentFilter(q)
	f.Order = "paid_at DESC, created_at DESC"
	f.Limit = q.Limit
	f.Offset = q.Offset
	return r.store.FindMany(ctx, f)
}

func (r *paymentRepository) Count(ctx context.Context, q PaymentQuery) (int64, error) {
	return r.store.Count(ctx, paymentFilter(q))
}

func paymentFilter(q PaymentQuery) Filter {
	f := Filter{}.Where("tenant_id = ?", q.TenantID)
	if q.MemberID != "" {
		f = f.Where("member_id = ?", q.MemberID)
	}
	if q.Status != "" {
		f = f.Where("status = ?", q.Status)
	}
	if q.Period != "" {
		f = f.Where("period = ?", q.Period)
	}
	if q.Provider != "" {
		f = f.Where("provider = ?", q.Provider)
	}
	if q.PaidFrom != nil {
		f = f.Where("paid_at >= ?", *q.PaidFrom)
	}
	if q.PaidTo != nil {
		f = f.Where("paid_at < ?", *q.PaidTo)
	}
	return f
}
