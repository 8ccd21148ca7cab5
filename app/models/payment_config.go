package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentConfig holds the tenant-wide monthly fee. A non-positive amount
// means the tenant has not configured fees yet.
type PaymentConfig struct {
	TenantID      string          `gorm:"type:varchar(64);primaryKey" json:"tenantId"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount"`
	Currency      string          `gorm:"type:varchar(8);not null;default:'ARS'" json:"currency"`
	DueDayOfMonth int             `gorm:"not null;default:10" json:"dueDayOfMonth"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (c *PaymentConfig) Configured() bool {
	return c != nil && c.Amount.IsPositive()
}

// CategoryFee overrides the tenant fee for members of one category.
type CategoryFee struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	TenantID   string          `gorm:"type:varchar(64);not null;index:ux_category_fees_tenant_category,unique,priority:1" json:"tenantId"`
	CategoryID string          `gorm:"type:varchar(64);not null;index:ux_category_fees_tenant_category,unique,priority:2" json:"categoryId"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency   string          `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}
