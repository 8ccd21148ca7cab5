package payments

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/notify"
)

// Notifier sends deduplicated member email.
type Notifier interface {
	Send(ctx context.Context, in notify.EmailEventInput) (bool, error)
}

// settler runs the follow-up of a newly approved payment.
type settler struct {
	members  repository.MemberRepository
	notifier Notifier
}

// afterApproval reactivates a suspended member and sends the receipt. Receipt
// failures are logged and never returned.
func (s *settler) afterApproval(ctx context.Context, member *models.Member, payment *models.Payment) error {
	if member.Status == models.MemberStatusSuspended {
		if err := s.members.SetStatus(ctx, member.TenantID, member.ID, models.MemberStatusActive); err != nil {
			return err
		}
		log.Infof("[Payments] Reactivated member %s of tenant %s", member.ID, member.TenantID)
		member.Status = models.MemberStatusActive
	}

	if s.notifier == nil {
		return nil
	}
	_, err := s.notifier.Send(ctx, notify.EmailEventInput{
		Type:     models.EmailTypePaymentReceipt,
		TenantID: member.TenantID,
		MemberID: member.ID,
		Period:   payment.Period,
		To:       member.Email,
		Content: notify.Content{
			MemberName: member.DisplayName(),
			Amount:     payment.Amount.StringFixed(2),
			Currency:   payment.Currency,
			Provider:   payment.Provider,
		},
	})
	if err != nil {
		log.Warnf("[Payments] Receipt for member %s period %s not sent: %v", member.ID, payment.Period, err)
	}
	return nil
}
