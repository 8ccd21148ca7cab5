package notify

import (
	"context"

	"github.com/ManuelReschke/ClubDues/internal/pkg/jobqueue"
)

type queueRelay struct {
	queue *jobqueue.Queue
}

// NewQueueRelay hands messages to the job queue as send_email jobs.
func NewQueueRelay(q *jobqueue.Queue) Relay {
	return &queueRelay{queue: q}
}

func (r *queueRelay) Enqueue(ctx context.Context, email Email) error {
	if r.queue == nil {
		return ErrRelayUnavailable
	}
	_, err := r.queue.EnqueueJob(ctx, jobqueue.JobTypeSendEmail, jobqueue.SendEmailJobPayload{
		To:             email.To,
		Subject:        email.Subject,
		HTMLBody:       email.HTMLBody,
		EmailType:      email.Type,
		TenantID:       email.TenantID,
		MemberID:       email.MemberID,
		Period:         email.Period,
		IdempotencyKey: email.IdempotencyKey,
	}.ToMap())
	return err
}
