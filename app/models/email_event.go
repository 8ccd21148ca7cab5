package models

import "time"

// Email event types.
const (
	EmailTypePaymentReceipt      = "payment_receipt"
	EmailTypeDelinquencyReminder = "delinquency_10_days"
	EmailTypeSuspensionNotice    = "suspension_30_days"
)

// EmailEvent is the append-only dedup ledger for outbound notifications.
type EmailEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Type           string    `gorm:"type:varchar(40);not null" json:"type"`
	TenantID       string    `gorm:"type:varchar(64);not null;index" json:"tenantId"`
	MemberID       string    `gorm:"type:varchar(64);not null;index" json:"memberId"`
	Period         string    `gorm:"type:varchar(16);not null" json:"period"`
	IdempotencyKey string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_email_events_idempotency_key" json:"idempotencyKey"`
	SentAt         time.Time `gorm:"type:timestamp;not null" json:"sentAt"`
}

// EmailIdempotencyKey builds the dedup key for one notification.
func EmailIdempotencyKey(emailType, memberID, period string) string {
	return emailType + ":" + memberID + ":" + period
}
