package payments

import (
	"time"

	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/archive"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

// Services bundles the payment components served over HTTP.
type Services struct {
	Ledger    *Ledger
	Pricing   *Pricing
	Engine    *Engine
	Intents   *IntentService
	Webhooks  *WebhookProcessor
	Verifier  *SignatureVerifier
	Manual    *ManualPayments
	Dunning   *Dunning
	Summaries *Summaries
}

// Deps are the collaborators Services are built from.
type Deps struct {
	Repos    *repository.Repositories
	Registry *provider.Registry
	Creds    CredentialSource
	Notifier Notifier
	Archiver archive.Archiver
	Verifier *SignatureVerifier
	Clock    clock.Clock
	Location *time.Location
	URLs     URLs
}

func NewServices(d Deps) *Services {
	clk := d.Clock
	if clk == nil {
		clk = clock.System{}
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	verifier := d.Verifier
	if verifier == nil {
		verifier = NewSignatureVerifierFromEnv(clk)
	}

	ledger := NewLedger(d.Repos.Payment, clk)
	pricing := NewPricing(d.Repos.PaymentConfig)
	engine := NewEngine(d.Repos.Member, ledger, pricing, clk, loc)
	return &Services{
		Ledger:    ledger,
		Pricing:   pricing,
		Engine:    engine,
		Intents:   NewIntentService(d.Registry, ledger, pricing, d.Repos.Member, d.Repos.PaymentIntent, d.Creds, d.URLs),
		Webhooks:  NewWebhookProcessor(ledger, d.Repos.Member, d.Repos.WebhookEvent, d.Notifier, d.Archiver, clk),
		Verifier:  verifier,
		Manual:    NewManualPayments(ledger, pricing, d.Repos.Member, d.Notifier),
		Dunning:   NewDunning(engine, d.Repos.Member, d.Notifier),
		Summaries: NewSummaries(d.Repos.Member, ledger, pricing, engine),
	}
}
