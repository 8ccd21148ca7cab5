package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/internal/pkg/mail"
)

// NewSendEmailProcessor delivers send_email jobs through sender.
func NewSendEmailProcessor(sender mail.Sender) Processor {
	return func(ctx context.Context, job *Job) error {
		payload, err := SendEmailJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid send_email payload: %w", err)
		}
		if payload.To == "" {
			log.Warnf("[JobQueue] Dropping email %s: no recipient", payload.IdempotencyKey)
			return nil
		}
		return sender.Send(ctx, mail.Message{
			To:       payload.To,
			Subject:  payload.Subject,
			HTMLBody: payload.HTMLBody,
		})
	}
}
