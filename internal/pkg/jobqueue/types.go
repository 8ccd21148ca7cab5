package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeSendEmail      JobType = "send_email"
	JobTypeArchiveWebhook JobType = "archive_webhook"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// SendEmailJobPayload carries one rendered notification to the mail relay
type SendEmailJobPayload struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	HTMLBody       string `json:"html_body"`
	EmailType      string `json:"email_type"`
	TenantID       string `json:"tenant_id"`
	MemberID       string `json:"member_id"`
	Period         string `json:"period"`
	IdempotencyKey string `json:"idempotency_key"`
}

// ToMap converts the payload to a map for storage
func (p SendEmailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"to":              p.To,
		"subject":         p.Subject,
		"html_body":       p.HTMLBody,
		"email_type":      p.EmailType,
		"tenant_id":       p.TenantID,
		"member_id":       p.MemberID,
		"period":          p.Period,
		"idempotency_key": p.IdempotencyKey,
	}
}

// SendEmailJobPayloadFromMap creates a payload from a map
func SendEmailJobPayloadFromMap(data map[string]interface{}) (*SendEmailJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload SendEmailJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ArchiveWebhookJobPayload carries a raw webhook delivery to the S3 archive
type ArchiveWebhookJobPayload struct {
	Provider   string    `json:"provider"`
	DeliveryID string    `json:"delivery_id"`
	ReceivedAt time.Time `json:"received_at"`
	Body       string    `json:"body"`
}

// ToMap converts the payload to a map for storage
func (p ArchiveWebhookJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":    p.Provider,
		"delivery_id": p.DeliveryID,
		"received_at": p.ReceivedAt.UTC().Format(time.RFC3339Nano),
		"body":        p.Body,
	}
}

// ArchiveWebhookJobPayloadFromMap creates a payload from a map
func ArchiveWebhookJobPayloadFromMap(data map[string]interface{}) (*ArchiveWebhookJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload ArchiveWebhookJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
