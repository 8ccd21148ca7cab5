package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
)

// DefaultDueDayOfMonth applies to tenants without a stored configuration.
const DefaultDueDayOfMonth = 10

// Price is the server-side amount for one obligation.
type Price struct {
	Amount        decimal.Decimal
	Currency      string
	DueDayOfMonth int
}

// Configured reports whether the price can be charged.
func (p Price) Configured() bool {
	return p.Amount.IsPositive()
}

// Pricing resolves fees from category overrides and tenant configuration.
type Pricing struct {
	configs repository.PaymentConfigRepository
}

func NewPricing(configs repository.PaymentConfigRepository) *Pricing {
	return &Pricing{configs: configs}
}

// Config returns the tenant's configuration or an unconfigured default.
func (p *Pricing) Config(ctx context.Context, tenantID string) (*models.PaymentConfig, error) {
	cfg, err := p.configs.FindConfig(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.PaymentConfig{
			TenantID:      tenantID,
			Amount:        decimal.Zero,
			Currency:      models.DefaultCurrency,
			DueDayOfMonth: DefaultDueDayOfMonth,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.Currency == "" {
		cfg.Currency = models.DefaultCurrency
	}
	if cfg.DueDayOfMonth < 1 {
		cfg.DueDayOfMonth = DefaultDueDayOfMonth
	}
	return cfg, nil
}

// SaveConfig replaces the tenant's fee configuration.
func (p *Pricing) SaveConfig(ctx context.Context, tenantID string, req PaymentConfigRequest) (*models.PaymentConfig, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	cfg := &models.PaymentConfig{
		TenantID:      tenantID,
		Amount:        req.Amount.Round(2),
		Currency:      NormalizeCurrency(req.Currency, models.DefaultCurrency),
		DueDayOfMonth: req.DueDayOfMonth,
	}
	if err := p.configs.SaveConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpectedAmountForPeriod resolves the fee the member owes for period. The
// category override wins over the tenant fee; registration is charged at the
// same rate as a month. The due day always comes from the tenant config.
func (p *Pricing) ExpectedAmountForPeriod(ctx context.Context, member *models.Member, period string) (Price, error) {
	if !IsValidPeriod(period) {
		return Price{}, apperr.ValidationErr("Invalid period.", map[string]string{"period": "period must be YYYY-MM or registration"})
	}
	cfg, err := p.Config(ctx, member.TenantID)
	if err != nil {
		return Price{}, err
	}
	return p.priceFor(ctx, member, cfg)
}

func (p *Pricing) priceFor(ctx context.Context, member *models.Member, cfg *models.PaymentConfig) (Price, error) {
	price := Price{Amount: cfg.Amount, Currency: cfg.Currency, DueDayOfMonth: cfg.DueDayOfMonth}
	if member.CategoryID == "" {
		return price, nil
	}
	fee, err := p.configs.FindCategoryFee(ctx, member.TenantID, member.CategoryID)
	if errors.Is(err, repository.ErrNotFound) {
		return price, nil
	}
	if err != nil {
		return Price{}, err
	}
	price.Amount = fee.Amount
	if fee.Currency != "" {
		price.Currency = fee.Currency
	}
	return price, nil
}
