package models

import "time"

// ProviderConnection stores a tenant's OAuth credentials for a provider.
// Token columns hold ciphertext and are never serialized.
type ProviderConnection struct {
	ID              uint       `gorm:"primaryKey" json:"-"`
	TenantID        string     `gorm:"type:varchar(64);not null;index:ux_provider_connections_tenant_provider,unique,priority:1" json:"-"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_provider_connections_tenant_provider,unique,priority:2" json:"-"`
	ProviderUserID  string     `gorm:"type:varchar(191);not null;default:''" json:"-"`
	AccessTokenEnc  string     `gorm:"type:text;not null" json:"-"`
	RefreshTokenEnc string     `gorm:"type:text" json:"-"`
	ExpiresAt       *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	ConnectedAt     time.Time  `gorm:"type:timestamp;not null" json:"-"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"-"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"-"`
}
