package models

import (
	"strings"
	"time"
)

const (
	MemberStatusActive    = "active"
	MemberStatusSuspended = "suspended"
	MemberStatusInactive  = "inactive"
)

// Member is a payer-tracked person of a tenant. Profile data is maintained
// elsewhere; the payments module reads it and toggles the suspension status.
type Member struct {
	ID         string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	TenantID   string    `gorm:"type:varchar(64);not null;index:idx_members_tenant_status,priority:1" json:"tenantId"`
	CategoryID string    `gorm:"type:varchar(64);not null;default:''" json:"categoryId,omitempty"`
	FirstName  string    `gorm:"type:varchar(100);not null;default:''" json:"firstName"`
	LastName   string    `gorm:"type:varchar(100);not null;default:''" json:"lastName"`
	Email      string    `gorm:"type:varchar(200);not null;default:''" json:"email"`
	Status     string    `gorm:"type:varchar(20);not null;default:'active';index:idx_members_tenant_status,priority:2" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// DisplayName renders "Last First", falling back to the id.
func (m Member) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(m.LastName) + " " + strings.TrimSpace(m.FirstName))
	if name == "" {
		return m.ID
	}
	return name
}

// Billable reports whether obligations accrue for the member.
func (m Member) Billable() bool {
	return m.Status == MemberStatusActive || m.Status == MemberStatusSuspended
}
