package models

import "time"

// Webhook delivery outcomes.
const (
	WebhookOutcomeRecorded  = "recorded"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeFailed    = "failed"
)

// WebhookEvent is the audit trail of inbound deliveries. Deduplication of
// payments relies on the payments table, not on this log.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_delivery,unique,priority:1" json:"provider"`
	DeliveryID      string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_delivery,unique,priority:2" json:"deliveryId"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payloadJson"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signatureValid"`
	Outcome         string     `gorm:"type:varchar(20);not null;default:''" json:"outcome"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processedAt,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processingError"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
}
