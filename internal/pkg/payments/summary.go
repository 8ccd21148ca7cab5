package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
)

const summaryPaymentLimit = 100

// MemberSummary is the staff view of one member's account.
type MemberSummary struct {
	Member            models.Member    `json:"member"`
	Payments          []models.Payment `json:"payments"`
	Delinquent        bool             `json:"delinquent"`
	DaysOverdue       int              `json:"daysOverdue"`
	SuggestedPeriod   string           `json:"suggestedPeriod,omitempty"`
	SuggestedAmount   *decimal.Decimal `json:"suggestedAmount,omitempty"`
	SuggestedCurrency string           `json:"suggestedCurrency,omitempty"`
	FeesNotConfigured bool             `json:"feesNotConfigured"`
}

// Summaries builds member summaries from the ledger and the engine.
type Summaries struct {
	members repository.MemberRepository
	ledger  *Ledger
	pricing *Pricing
	engine  *Engine
}

func NewSummaries(members repository.MemberRepository, ledger *Ledger, pricing *Pricing, engine *Engine) *Summaries {
	return &Summaries{members: members, ledger: ledger, pricing: pricing, engine: engine}
}

// ForMember lists the member's payments and the next obligation to settle.
func (s *Summaries) ForMember(ctx context.Context, tenantID, memberID string) (*MemberSummary, error) {
	member, err := findMember(ctx, s.members, tenantID, memberID)
	if err != nil {
		return nil, err
	}
	page, err := s.ledger.ListPayments(ctx, ListPaymentsRequest{
		TenantID: tenantID,
		MemberID: memberID,
		Limit:    summaryPaymentLimit,
	})
	if err != nil {
		return nil, err
	}

	summary := &MemberSummary{Member: *member, Payments: page.Payments}

	price, err := s.pricing.ExpectedAmountForPeriod(ctx, member, models.PeriodRegistration)
	if err != nil {
		return nil, err
	}
	if !price.Configured() {
		summary.FeesNotConfigured = true
		return summary, nil
	}

	next, err := s.engine.ForMember(ctx, member)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return summary, nil
	}
	today := startOfDay(s.engine.clock.Now(), s.engine.location)
	summary.Delinquent = !next.DueDate.After(today) && member.Billable()
	summary.DaysOverdue = next.DaysOverdue
	summary.SuggestedPeriod = next.Period
	amount := next.Amount
	summary.SuggestedAmount = &amount
	summary.SuggestedCurrency = next.Currency
	return summary, nil
}
