package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment providers.
const (
	ProviderMercadoPago = "mercadopago"
	ProviderDLocal      = "dlocal"
	ProviderMidtrans    = "midtrans"
	ProviderManual      = "manual"
)

// Payment statuses.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
	PaymentStatusRefunded = "refunded"
)

// PeriodRegistration identifies the one-time registration fee.
const PeriodRegistration = "registration"

// DefaultCurrency is used when a tenant or request does not name one.
const DefaultCurrency = "ARS"

// Payment is a ledger row. Rows are written once; the approval key is only
// set on approved rows so the unique index allows a single approval per
// member and period while leaving other statuses unconstrained.
type Payment struct {
	ID                string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID          string            `gorm:"type:varchar(64);not null;index:idx_payments_tenant_member,priority:1;index:idx_payments_tenant_paid,priority:1" json:"tenantId"`
	MemberID          string            `gorm:"type:varchar(64);not null;index:idx_payments_tenant_member,priority:2" json:"memberId"`
	Period            string            `gorm:"type:varchar(16);not null;index" json:"period"`
	Amount            decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency          string            `gorm:"type:varchar(8);not null" json:"currency"`
	Provider          string            `gorm:"type:varchar(20);not null;index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID *string           `gorm:"type:varchar(191);index:ux_payments_provider_payment,unique,priority:2" json:"providerPaymentId,omitempty"`
	Status            string            `gorm:"type:varchar(20);not null;index" json:"status"`
	PaidAt            *time.Time        `gorm:"type:timestamp;default:null;index:idx_payments_tenant_paid,priority:2" json:"paidAt,omitempty"`
	Metadata          datatypes.JSONMap `json:"metadata,omitempty"`
	ApprovalKey       *string           `gorm:"type:varchar(200);uniqueIndex:ux_payments_approval_key" json:"-"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

// ApprovalKey is the value of the unique approval column for a member period.
func ApprovalKey(tenantID, memberID, period string) string {
	return tenantID + ":" + memberID + ":" + period
}

// SealApproval sets or clears the approval key according to the status.
func (p *Payment) SealApproval() {
	if p.Status != PaymentStatusApproved {
		p.ApprovalKey = nil
		return
	}
	key := ApprovalKey(p.TenantID, p.MemberID, p.Period)
	p.ApprovalKey = &key
}

func (p *Payment) IsApproved() bool {
	return p.Status == PaymentStatusApproved
}
