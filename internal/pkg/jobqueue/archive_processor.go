package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/ClubDues/internal/pkg/archive"
)

// NewArchiveWebhookProcessor uploads archive_webhook jobs through archiver.
func NewArchiveWebhookProcessor(archiver archive.Archiver) Processor {
	return func(ctx context.Context, job *Job) error {
		payload, err := ArchiveWebhookJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid archive_webhook payload: %w", err)
		}
		return archiver.Archive(ctx, payload.Provider, payload.DeliveryID, payload.ReceivedAt, []byte(payload.Body))
	}
}

type queuedArchiver struct {
	queue *Queue
}

// NewQueuedArchiver defers archive uploads to archive_webhook jobs.
func NewQueuedArchiver(q *Queue) archive.Archiver {
	return &queuedArchiver{queue: q}
}

func (a *queuedArchiver) Archive(ctx context.Context, provider, deliveryID string, receivedAt time.Time, payload []byte) error {
	_, err := a.queue.EnqueueJob(ctx, JobTypeArchiveWebhook, ArchiveWebhookJobPayload{
		Provider:   provider,
		DeliveryID: deliveryID,
		ReceivedAt: receivedAt,
		Body:       string(payload),
	}.ToMap())
	return err
}
