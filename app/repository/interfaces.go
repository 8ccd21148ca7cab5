package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/ClubDues/app/models"
	"gorm.io/gorm"
)

// PaymentQuery filters ledger listings. Zero values are ignored.
type PaymentQuery struct {
	TenantID string
	MemberID string
	Status   string
	Period   string
	Provider string
	PaidFrom *time.Time
	PaidTo   *time.Time // exclusive
	Limit    int
	Offset   int
}

// PaymentRepository defines the ledger operations.
type PaymentRepository interface {
	CreateIfAbsent(ctx context.Context, payment *models.Payment) (bool, error)
	FindApproved(ctx context.Context, tenantID, memberID, period string) (*models.Payment, error)
	FindByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*models.Payment, error)
	FindMany(ctx context.Context, q PaymentQuery) ([]models.Payment, error)
	Count(ctx context.Context, q PaymentQuery) (int64, error)
}

// PaymentIntentRepository persists checkout attempts.
type PaymentIntentRepository interface {
	CreateIfAbsent(ctx context.Context, intent *models.PaymentIntent) (bool, error)
	FindOne(ctx context.Context, tenantID, intentID string) (*models.PaymentIntent, error)
}

// MemberRepository reads members and toggles their suspension state.
type MemberRepository interface {
	CreateIfAbsent(ctx context.Context, member *models.Member) (bool, error)
	FindInTenant(ctx context.Context, tenantID, memberID string) (*models.Member, error)
	FindBillable(ctx context.Context, tenantID string) ([]models.Member, error)
	SetStatus(ctx context.Context, tenantID, memberID, status string) error
}

// PaymentConfigRepository resolves tenant pricing.
type PaymentConfigRepository interface {
	FindConfig(ctx context.Context, tenantID string) (*models.PaymentConfig, error)
	SaveConfig(ctx context.Context, cfg *models.PaymentConfig) error
	FindCategoryFee(ctx context.Context, tenantID, categoryID string) (*models.CategoryFee, error)
}

// ProviderConnectionRepository stores per-tenant OAuth credentials.
type ProviderConnectionRepository interface {
	Upsert(ctx context.Context, conn *models.ProviderConnection) error
	FindOne(ctx context.Context, tenantID, provider string) (*models.ProviderConnection, error)
}

// EmailEventRepository is the append-only notification dedup ledger.
type EmailEventRepository interface {
	CreateIfAbsent(ctx context.Context, event *models.EmailEvent) (bool, error)
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// WebhookEventRepository is the delivery audit log.
type WebhookEventRepository interface {
	CreateIfAbsent(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, id uint, outcome, processingError string) error
}

// Repositories holds all repository instances
type Repositories struct {
	Payment            PaymentRepository
	PaymentIntent      PaymentIntentRepository
	Member             MemberRepository
	PaymentConfig      PaymentConfigRepository
	ProviderConnection ProviderConnectionRepository
	EmailEvent         EmailEventRepository
	WebhookEvent       WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Payment:            NewPaymentRepository(db),
		PaymentIntent:      NewPaymentIntentRepository(db),
		Member:             NewMemberRepository(db),
		PaymentConfig:      NewPaymentConfigRepository(db),
		ProviderConnection: NewProviderConnectionRepository(db),
		EmailEvent:         NewEmailEventRepository(db),
		WebhookEvent:       NewWebhookEventRepository(db),
	}
}
