package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
)

var (
	// ErrDuplicatePayment reports that the provider payment id was already recorded.
	ErrDuplicatePayment = errors.New("payment already recorded")
	// ErrPeriodAlreadyPaid reports that another approved payment covers the period.
	ErrPeriodAlreadyPaid = errors.New("period already paid")
)

// PaymentRecord describes a payment to write to the ledger.
type PaymentRecord struct {
	TenantID          string
	MemberID          string
	Period            string
	Amount            decimal.Decimal
	Currency          string
	Provider          string
	ProviderPaymentID string
	Status            string // defaults to approved
	PaidAt            *time.Time
	Metadata          map[string]interface{}
}

// PaymentPage is one page of a ledger listing.
type PaymentPage struct {
	Payments []models.Payment `json:"payments"`
	Total    int64            `json:"total"`
}

// Ledger is the write-once payment store.
type Ledger struct {
	payments repository.PaymentRepository
	clock    clock.Clock
}

func NewLedger(payments repository.PaymentRepository, clk clock.Clock) *Ledger {
	if clk == nil {
		clk = clock.System{}
	}
	return &Ledger{payments: payments, clock: clk}
}

// CreatePayment inserts the record with a single conditional write. When the
// write loses against an existing row the existing payment is returned along
// with ErrDuplicatePayment or ErrPeriodAlreadyPaid.
func (l *Ledger) CreatePayment(ctx context.Context, rec PaymentRecord) (*models.Payment, error) {
	status := rec.Status
	if status == "" {
		status = models.PaymentStatusApproved
	}
	paidAt := rec.PaidAt
	if paidAt == nil && status == models.PaymentStatusApproved {
		now := l.clock.Now().UTC()
		paidAt = &now
	}

	payment := &models.Payment{
		ID:       uuid.New().String(),
		TenantID: rec.TenantID,
		MemberID: rec.MemberID,
		Period:   rec.Period,
		Amount:   rec.Amount,
		Currency: strings.ToUpper(rec.Currency),
		Provider: rec.Provider,
		Status:   status,
		PaidAt:   paidAt,
	}
	if id := strings.TrimSpace(rec.ProviderPaymentID); id != "" {
		payment.ProviderPaymentID = &id
	}
	if len(rec.Metadata) > 0 {
		payment.Metadata = datatypes.JSONMap(rec.Metadata)
	}

	created, err := l.payments.CreateIfAbsent(ctx, payment)
	if err != nil {
		return nil, err
	}
	if created {
		return payment, nil
	}

	if payment.ProviderPaymentID != nil {
		existing, err := l.FindPaymentByProviderID(ctx, payment.Provider, *payment.ProviderPaymentID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, ErrDuplicatePayment
		}
	}
	if payment.IsApproved() {
		existing, err := l.FindApprovedPayment(ctx, payment.TenantID, payment.MemberID, payment.Period)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, ErrPeriodAlreadyPaid
		}
	}
	return nil, fmt.Errorf("payment %s for member %s period %s: conflicting row not found", payment.ID, payment.MemberID, payment.Period)
}

// FindApprovedPayment returns the approved payment for a member period, or nil.
func (l *Ledger) FindApprovedPayment(ctx context.Context, tenantID, memberID, period string) (*models.Payment, error) {
	p, err := l.payments.FindApproved(ctx, tenantID, memberID, period)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// FindPaymentByProviderID returns the payment with the provider's id, or nil.
func (l *Ledger) FindPaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*models.Payment, error) {
	p, err := l.payments.FindByProviderPaymentID(ctx, provider, providerPaymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// ListPayments returns a filtered page of the tenant's ledger. DateTo is
// inclusive of the whole day.
func (l *Ledger) ListPayments(ctx context.Context, req ListPaymentsRequest) (*PaymentPage, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	q := repository.PaymentQuery{
		TenantID: req.TenantID,
		MemberID: req.MemberID,
		Status:   req.Status,
		Period:   req.Period,
		Provider: req.Provider,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}
	if q.Limit == 0 {
		q.Limit = DefaultListLimit
	}
	from, _ := parseDay(req.DateFrom)
	q.PaidFrom = from
	if to, _ := parseDay(req.DateTo); to != nil {
		end := to.AddDate(0, 0, 1)
		q.PaidTo = &end
	}

	payments, err := l.payments.FindMany(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := l.payments.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return &PaymentPage{Payments: payments, Total: total}, nil
}
