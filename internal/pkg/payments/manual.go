package payments

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
)

// Collector identifies the staff user recording a manual payment.
type Collector struct {
	UID         string
	Email       string
	DisplayName string
}

// ManualPayments records cash and transfer payments collected by staff.
type ManualPayments struct {
	ledger  *Ledger
	pricing *Pricing
	members repository.MemberRepository
	settle  settler
}

func NewManualPayments(ledger *Ledger, pricing *Pricing, members repository.MemberRepository, notifier Notifier) *ManualPayments {
	return &ManualPayments{
		ledger:  ledger,
		pricing: pricing,
		members: members,
		settle:  settler{members: members, notifier: notifier},
	}
}

// Record writes an approved manual payment. The staff supplied amount is
// kept as collected.
func (m *ManualPayments) Record(ctx context.Context, req ManualPaymentRequest, by Collector) (*models.Payment, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	member, err := findMember(ctx, m.members, req.TenantID, req.MemberID)
	if err != nil {
		return nil, err
	}

	currency := NormalizeCurrency(req.Currency, "")
	if currency == "" {
		cfg, err := m.pricing.Config(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		currency = cfg.Currency
	}

	payment, err := m.ledger.CreatePayment(ctx, PaymentRecord{
		TenantID: req.TenantID,
		MemberID: req.MemberID,
		Period:   req.Period,
		Amount:   req.Amount.Round(2),
		Currency: currency,
		Provider: models.ProviderManual,
		Status:   models.PaymentStatusApproved,
		Metadata: map[string]interface{}{
			"collectedByUid":         by.UID,
			"collectedByEmail":       by.Email,
			"collectedByDisplayName": by.DisplayName,
		},
	})
	if errors.Is(err, ErrPeriodAlreadyPaid) || errors.Is(err, ErrDuplicatePayment) {
		return nil, apperr.ConflictErr("period_already_paid", "This period is already paid.")
	}
	if err != nil {
		return nil, err
	}
	log.Infof("[Payments] %s recorded manual payment %s for member %s period %s", by.UID, payment.ID, member.ID, req.Period)

	if err := m.settle.afterApproval(ctx, member, payment); err != nil {
		log.Errorf("[Payments] Reactivating member %s failed: %v", member.ID, err)
	}
	return payment, nil
}
