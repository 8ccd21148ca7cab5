package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/credentials"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

const providerTimeout = 20 * time.Second

// CredentialSource loads a tenant's provider credentials.
type CredentialSource interface {
	Get(ctx context.Context, tenantID, providerName string) (*provider.Credentials, error)
}

// URLs are the public addresses handed to providers.
type URLs struct {
	APIBaseURL string
	AppBaseURL string
}

func (u URLs) notification() string {
	return strings.TrimRight(u.APIBaseURL, "/") + "/api/payments/webhook"
}

func (u URLs) result(status string) string {
	return strings.TrimRight(u.AppBaseURL, "/") + "/dashboard/payments?checkout=" + status
}

// IntentResult is returned to the client that started the checkout.
type IntentResult struct {
	IntentID             string `json:"intentId"`
	CheckoutURL          string `json:"checkoutUrl"`
	ProviderPreferenceID string `json:"providerPreferenceId"`
	Status               string `json:"status"`
}

// IntentService opens provider checkouts for server-priced obligations.
type IntentService struct {
	registry    *provider.Registry
	ledger      *Ledger
	pricing     *Pricing
	members     repository.MemberRepository
	intents     repository.PaymentIntentRepository
	credentials CredentialSource
	urls        URLs
}

func NewIntentService(
	registry *provider.Registry,
	ledger *Ledger,
	pricing *Pricing,
	members repository.MemberRepository,
	intents repository.PaymentIntentRepository,
	creds CredentialSource,
	urls URLs,
) *IntentService {
	return &IntentService{
		registry:    registry,
		ledger:      ledger,
		pricing:     pricing,
		members:     members,
		intents:     intents,
		credentials: creds,
		urls:        urls,
	}
}

// CreateIntent starts a checkout. The amount always comes from pricing; any
// client supplied amount is ignored.
func (s *IntentService) CreateIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}

	member, err := findMember(ctx, s.members, req.TenantID, req.MemberID)
	if err != nil {
		return nil, err
	}

	paid, err := s.ledger.FindApprovedPayment(ctx, req.TenantID, req.MemberID, req.Period)
	if err != nil {
		return nil, err
	}
	if paid != nil {
		return nil, apperr.ConflictErr("period_already_paid", "This period is already paid.")
	}

	price, err := s.pricing.ExpectedAmountForPeriod(ctx, member, req.Period)
	if err != nil {
		return nil, err
	}
	if !price.Configured() {
		return nil, apperr.ConfigurationErr("fees_not_configured",
			"Set the monthly fee in Payments > Settings before charging members.")
	}
	if req.Currency != "" && NormalizeCurrency(req.Currency, "") != price.Currency {
		return nil, apperr.ValidationErr("Currency does not match the configured fee.",
			map[string]string{"currency": "currency must be " + price.Currency})
	}

	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	var creds *provider.Credentials
	if adapter.RequiresConnection() {
		creds, err = s.credentials.Get(ctx, req.TenantID, adapter.Name())
		if errors.Is(err, credentials.ErrNotConnected) {
			return nil, apperr.ConfigurationErr("provider_not_connected",
				"Connect your Mercado Pago account in Payments > Settings.")
		}
		if err != nil {
			return nil, err
		}
	}

	intentID := uuid.New().String()
	checkoutReq := provider.CheckoutRequest{
		IntentID:        intentID,
		TenantID:        req.TenantID,
		MemberID:        member.ID,
		MemberName:      member.DisplayName(),
		MemberFirstName: member.FirstName,
		MemberLastName:  member.LastName,
		MemberEmail:     member.Email,
		Period:          req.Period,
		Title:           PeriodTitle(req.Period),
		Amount:          price.Amount,
		Currency:        price.Currency,
		NotificationURL: s.urls.notification(),
		SuccessURL:      s.urls.result("success"),
		FailureURL:      s.urls.result("failure"),
	}

	pctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()
	checkout, err := adapter.CreateCheckout(pctx, checkoutReq, creds)
	if err != nil {
		log.Errorf("[Intent] %s checkout for member %s period %s failed: %v", adapter.Name(), member.ID, req.Period, err)
		return nil, err
	}

	intent := &models.PaymentIntent{
		ID:                   intentID,
		TenantID:             req.TenantID,
		MemberID:             member.ID,
		Period:               req.Period,
		Amount:               price.Amount,
		Currency:             price.Currency,
		Provider:             adapter.Name(),
		ProviderPreferenceID: checkout.ProviderPreferenceID,
		CheckoutURL:          checkout.CheckoutURL,
		Status:               models.PaymentIntentStatusPending,
	}
	if _, err := s.intents.CreateIfAbsent(ctx, intent); err != nil {
		return nil, fmt.Errorf("store intent: %w", err)
	}
	log.Infof("[Intent] Created %s intent %s for member %s period %s", adapter.Name(), intentID, member.ID, req.Period)

	return &IntentResult{
		IntentID:             intentID,
		CheckoutURL:          checkout.CheckoutURL,
		ProviderPreferenceID: checkout.ProviderPreferenceID,
		Status:               intent.Status,
	}, nil
}

// PeriodTitle is the item title shown on provider checkout pages.
func PeriodTitle(period string) string {
	if IsRegistration(period) {
		return "Inscripción"
	}
	if len(period) == 7 {
		return "Cuota " + period[5:] + "/" + period[:4]
	}
	return "Cuota " + period
}

func findMember(ctx context.Context, members repository.MemberRepository, tenantID, memberID string) (*models.Member, error) {
	member, err := members.FindInTenant(ctx, tenantID, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.ValidationErr("Member not found in this tenant.",
			map[string]string{"memberId": "memberId does not belong to tenantId"})
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}
