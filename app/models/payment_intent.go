package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const PaymentIntentStatusPending = "pending"

// PaymentIntent records a started checkout. It is never proof of payment.
type PaymentIntent struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID             string          `gorm:"type:varchar(64);not null;index:idx_payment_intents_tenant_member,priority:1" json:"tenantId"`
	MemberID             string          `gorm:"type:varchar(64);not null;index:idx_payment_intents_tenant_member,priority:2" json:"memberId"`
	Period               string          `gorm:"type:varchar(16);not null" json:"period"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency             string          `gorm:"type:varchar(8);not null" json:"currency"`
	Provider             string          `gorm:"type:varchar(20);not null" json:"provider"`
	ProviderPreferenceID string          `gorm:"type:varchar(191);not null;index" json:"providerPreferenceId"`
	CheckoutURL          string          `gorm:"type:text;not null" json:"checkoutUrl"`
	Status               string          `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}
