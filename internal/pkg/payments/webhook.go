package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/archive"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
)

// WebhookDelivery is one inbound notification as received.
type WebhookDelivery struct {
	Payload        WebhookPayload
	Raw            []byte
	DeliveryID     string
	SignatureValid bool
}

// WebhookResult tells the controller how to answer the provider.
type WebhookResult struct {
	Duplicate bool   `json:"duplicate"`
	PaymentID string `json:"paymentId,omitempty"`
}

// WebhookProcessor turns approved provider notifications into ledger rows.
// Replays of the same provider payment produce no additional side effects.
type WebhookProcessor struct {
	ledger   *Ledger
	members  repository.MemberRepository
	events   repository.WebhookEventRepository
	archiver archive.Archiver
	settle   settler
	clock    clock.Clock
}

func NewWebhookProcessor(
	ledger *Ledger,
	members repository.MemberRepository,
	events repository.WebhookEventRepository,
	notifier Notifier,
	archiver archive.Archiver,
	clk clock.Clock,
) *WebhookProcessor {
	if clk == nil {
		clk = clock.System{}
	}
	return &WebhookProcessor{
		ledger:   ledger,
		members:  members,
		events:   events,
		archiver: archiver,
		settle:   settler{members: members, notifier: notifier},
		clock:    clk,
	}
}

const unverifiedDeliveryPrefix = "unverified:"

// InvalidSignatureErr is the error answered for unauthenticated deliveries.
func InvalidSignatureErr() *apperr.AppError {
	return &apperr.AppError{Kind: apperr.Auth, Code: "invalid_signature", PublicMsg: "Webhook signature is invalid."}
}

// Process records the delivery in the audit log and, when it is authentic
// and valid, in the ledger.
func (w *WebhookProcessor) Process(ctx context.Context, d WebhookDelivery) (*WebhookResult, error) {
	p := d.Payload
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	p.Currency = NormalizeCurrency(p.Currency, "")

	event := w.audit(ctx, p.Provider, d)

	if !d.SignatureValid {
		w.finish(ctx, event, models.WebhookOutcomeRejected, "invalid signature")
		return nil, InvalidSignatureErr()
	}
	if err := Validate(&p); err != nil {
		w.finish(ctx, event, models.WebhookOutcomeRejected, err.Error())
		return nil, err
	}

	existing, err := w.ledger.FindPaymentByProviderID(ctx, p.Provider, p.ProviderPaymentID)
	if err != nil {
		w.finish(ctx, event, models.WebhookOutcomeFailed, err.Error())
		return nil, err
	}
	if existing != nil && existing.IsApproved() {
		if err := w.resettle(ctx, existing); err != nil {
			w.finish(ctx, event, models.WebhookOutcomeFailed, "reactivation failed: "+err.Error())
			return nil, reactivationErr(err)
		}
		w.finish(ctx, event, models.WebhookOutcomeDuplicate, "")
		return &WebhookResult{Duplicate: true, PaymentID: existing.ID}, nil
	}

	member, err := findMember(ctx, w.members, p.TenantID, p.MemberID)
	if err != nil {
		w.finish(ctx, event, models.WebhookOutcomeRejected, err.Error())
		return nil, err
	}

	now := w.clock.Now().UTC()
	payment, err := w.ledger.CreatePayment(ctx, PaymentRecord{
		TenantID:          p.TenantID,
		MemberID:          p.MemberID,
		Period:            p.Period,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Provider:          p.Provider,
		ProviderPaymentID: p.ProviderPaymentID,
		Status:            models.PaymentStatusApproved,
		PaidAt:            &now,
		Metadata:          map[string]interface{}{"source": "webhook", "deliveryId": d.DeliveryID},
	})
	switch {
	case errors.Is(err, ErrDuplicatePayment):
		if err := w.resettle(ctx, payment); err != nil {
			w.finish(ctx, event, models.WebhookOutcomeFailed, "reactivation failed: "+err.Error())
			return nil, reactivationErr(err)
		}
		w.finish(ctx, event, models.WebhookOutcomeDuplicate, "")
		return &WebhookResult{Duplicate: true, PaymentID: payment.ID}, nil
	case errors.Is(err, ErrPeriodAlreadyPaid):
		log.Warnf("[Webhook] %s payment %s for member %s period %s arrived after period was paid by %s; reconcile manually",
			p.Provider, p.ProviderPaymentID, p.MemberID, p.Period, payment.ID)
		w.finish(ctx, event, models.WebhookOutcomeDuplicate, "period already paid by "+payment.ID)
		return &WebhookResult{Duplicate: true, PaymentID: payment.ID}, nil
	case err != nil:
		log.Errorf("[Webhook] Recording %s payment %s failed: %v", p.Provider, p.ProviderPaymentID, err)
		w.finish(ctx, event, models.WebhookOutcomeFailed, err.Error())
		return nil, err
	}
	log.Infof("[Webhook] Recorded %s payment %s for member %s period %s", p.Provider, p.ProviderPaymentID, p.MemberID, p.Period)

	if err := w.settle.afterApproval(ctx, member, payment); err != nil {
		log.Errorf("[Webhook] Reactivating member %s failed: %v", member.ID, err)
		w.finish(ctx, event, models.WebhookOutcomeFailed, "reactivation failed: "+err.Error())
		return nil, reactivationErr(err)
	}
	w.finish(ctx, event, models.WebhookOutcomeRecorded, "")
	return &WebhookResult{PaymentID: payment.ID}, nil
}

// resettle completes the follow-up of an already recorded payment whose
// member is still suspended. A suspension made after the payment was
// recorded is left alone.
func (w *WebhookProcessor) resettle(ctx context.Context, payment *models.Payment) error {
	if payment == nil || !payment.IsApproved() {
		return nil
	}
	member, err := w.members.FindInTenant(ctx, payment.TenantID, payment.MemberID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if member.Status != models.MemberStatusSuspended || member.UpdatedAt.After(payment.CreatedAt) {
		return nil
	}
	log.Infof("[Webhook] Completing reactivation of member %s for payment %s", member.ID, payment.ID)
	return w.settle.afterApproval(ctx, member, payment)
}

// reactivationErr asks the provider to redeliver; the payment itself is
// already recorded.
func reactivationErr(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.TransientErr(apperr.CodeStoreUnavailable, err)
}

// audit stores the delivery and, once its signature checked out, schedules
// the raw body for archiving. Unverified deliveries are keyed apart so they
// never take the slot of the genuine delivery. Audit failures never block
// payment processing.
func (w *WebhookProcessor) audit(ctx context.Context, provider string, d WebhookDelivery) *models.WebhookEvent {
	deliveryID := strings.TrimSpace(d.DeliveryID)
	if deliveryID == "" {
		deliveryID = d.Payload.ProviderPaymentID
	}
	if provider == "" || deliveryID == "" || w.events == nil {
		return nil
	}
	if !d.SignatureValid {
		deliveryID = unverifiedDeliveryPrefix + deliveryID
	}

	event := &models.WebhookEvent{
		Provider:       provider,
		DeliveryID:     deliveryID,
		PayloadJSON:    string(d.Raw),
		SignatureValid: d.SignatureValid,
	}
	created, err := w.events.CreateIfAbsent(ctx, event)
	if err != nil {
		log.Warnf("[Webhook] Audit of %s delivery %s failed: %v", provider, deliveryID, err)
		return nil
	}
	if !created {
		return event
	}

	if w.archiver != nil && d.SignatureValid {
		if err := w.archiver.Archive(ctx, provider, deliveryID, w.clock.Now().UTC(), d.Raw); err != nil {
			log.Warnf("[Webhook] Archiving %s delivery %s failed: %v", provider, deliveryID, err)
		}
	}
	return event
}

func (w *WebhookProcessor) finish(ctx context.Context, event *models.WebhookEvent, outcome, processingError string) {
	if event == nil || event.ID == 0 {
		return
	}
	if err := w.events.MarkProcessed(ctx, event.ID, outcome, processingError); err != nil {
		log.Warnf("[Webhook] Marking delivery %s failed: %v", event.DeliveryID, err)
	}
}
