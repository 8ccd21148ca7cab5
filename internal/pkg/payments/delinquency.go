package payments

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
)

// DelinquentInfo is the earliest unpaid obligation of one member.
type DelinquentInfo struct {
	MemberID    string          `json:"memberId"`
	TenantID    string          `json:"tenantId"`
	MemberName  string          `json:"memberName"`
	Email       string          `json:"email,omitempty"`
	Status      string          `json:"memberStatus"`
	Period      string          `json:"period"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	DueDate     time.Time       `json:"dueDate"`
	DaysOverdue int             `json:"daysOverdue"`
}

// Engine derives outstanding obligations from the ledger.
type Engine struct {
	members  repository.MemberRepository
	ledger   *Ledger
	pricing  *Pricing
	clock    clock.Clock
	location *time.Location
}

// NewEngine builds an engine evaluating calendar days in loc (UTC when nil).
func NewEngine(members repository.MemberRepository, ledger *Ledger, pricing *Pricing, clk clock.Clock, loc *time.Location) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{members: members, ledger: ledger, pricing: pricing, clock: clk, location: loc}
}

// ComputeDelinquents lists billable members whose earliest unpaid obligation
// is due, most overdue first.
func (e *Engine) ComputeDelinquents(ctx context.Context, tenantID string) ([]DelinquentInfo, error) {
	cfg, err := e.pricing.Config(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	members, err := e.members.FindBillable(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	today := startOfDay(e.clock.Now(), e.location)
	out := make([]DelinquentInfo, 0)
	for i := range members {
		info, err := e.earliestUnresolved(ctx, &members[i], cfg, today)
		if err != nil {
			return nil, err
		}
		if info == nil || info.DueDate.After(today) {
			continue
		}
		out = append(out, *info)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysOverdue != out[j].DaysOverdue {
			return out[i].DaysOverdue > out[j].DaysOverdue
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

// ForMember returns the member's earliest unpaid obligation even when it is
// not due yet. It returns nil when everything up to the current month is paid
// or the fee is not configured.
func (e *Engine) ForMember(ctx context.Context, member *models.Member) (*DelinquentInfo, error) {
	cfg, err := e.pricing.Config(ctx, member.TenantID)
	if err != nil {
		return nil, err
	}
	return e.earliestUnresolved(ctx, member, cfg, startOfDay(e.clock.Now(), e.location))
}

// obligations lists the member's periods in the order they must be settled.
func (e *Engine) obligations(member *models.Member, today time.Time) []string {
	periods := []string{models.PeriodRegistration}
	return append(periods, MonthlyPeriods(member.CreatedAt.In(e.location), today)...)
}

func (e *Engine) earliestUnresolved(ctx context.Context, member *models.Member, cfg *models.PaymentConfig, today time.Time) (*DelinquentInfo, error) {
	price, err := e.pricing.priceFor(ctx, member, cfg)
	if err != nil {
		return nil, err
	}
	if !price.Configured() {
		log.Debugf("[Delinquency] Skipping member %s of tenant %s: fee not configured", member.ID, member.TenantID)
		return nil, nil
	}

	for _, period := range e.obligations(member, today) {
		paid, err := e.ledger.FindApprovedPayment(ctx, member.TenantID, member.ID, period)
		if err != nil {
			return nil, err
		}
		if paid != nil {
			continue
		}
		due, err := e.dueDate(member, period, price.DueDayOfMonth)
		if err != nil {
			return nil, err
		}
		return &DelinquentInfo{
			MemberID:    member.ID,
			TenantID:    member.TenantID,
			MemberName:  member.DisplayName(),
			Email:       member.Email,
			Status:      member.Status,
			Period:      period,
			Amount:      price.Amount,
			Currency:    price.Currency,
			DueDate:     due,
			DaysOverdue: DaysOverdue(due, today, e.location),
		}, nil
	}
	return nil, nil
}

func (e *Engine) dueDate(member *models.Member, period string, dueDay int) (time.Time, error) {
	if IsRegistration(period) {
		return startOfDay(member.CreatedAt, e.location), nil
	}
	return DueDate(period, dueDay, e.location)
}
