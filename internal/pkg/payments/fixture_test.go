package payments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/app/repository/memstore"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/notify"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

var today = time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)

type countingRelay struct {
	mu     sync.Mutex
	emails []notify.Email
}

func (r *countingRelay) Enqueue(_ context.Context, e notify.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, e)
	return nil
}

func (r *countingRelay) ofType(emailType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.emails {
		if e.Type == emailType {
			n++
		}
	}
	return n
}

type fixture struct {
	store      *memstore.Store
	repos      *repository.Repositories
	clock      clock.Clock
	ledger     *Ledger
	pricing    *Pricing
	engine     *Engine
	relay      *countingRelay
	dispatcher *notify.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	repos := store.Repositories()
	clk := clock.Fixed(today)
	relay := &countingRelay{}
	dispatcher, err := notify.NewDispatcher(repos.EmailEvent, relay, clk)
	require.NoError(t, err)

	ledger := NewLedger(repos.Payment, clk)
	pricing := NewPricing(repos.PaymentConfig)
	return &fixture{
		store:      store,
		repos:      repos,
		clock:      clk,
		ledger:     ledger,
		pricing:    pricing,
		engine:     NewEngine(repos.Member, ledger, pricing, clk, time.UTC),
		relay:      relay,
		dispatcher: dispatcher,
	}
}

func (f *fixture) configure(amount int64) {
	f.store.SetConfig(models.PaymentConfig{
		TenantID:      "S1",
		Amount:        decimal.NewFromInt(amount),
		Currency:      "ARS",
		DueDayOfMonth: 10,
	})
}

func (f *fixture) member(id string, createdAt time.Time) {
	f.store.AddMember(models.Member{
		ID:        id,
		TenantID:  "S1",
		FirstName: "Juan",
		LastName:  "Pérez " + id,
		Email:     id + "@example.com",
		CreatedAt: createdAt,
	})
}

func (f *fixture) pay(t *testing.T, memberID, period string) {
	t.Helper()
	_, err := f.ledger.CreatePayment(context.Background(), PaymentRecord{
		TenantID: "S1",
		MemberID: memberID,
		Period:   period,
		Amount:   decimal.NewFromInt(15000),
		Currency: "ARS",
		Provider: models.ProviderManual,
	})
	require.NoError(t, err)
}

func (f *fixture) webhooks() *WebhookProcessor {
	return NewWebhookProcessor(f.ledger, f.repos.Member, f.repos.WebhookEvent, f.dispatcher, nil, f.clock)
}

type fakeAdapter struct {
	mu        sync.Mutex
	name      string
	needsConn bool
	calls     []provider.CheckoutRequest
	creds     []*provider.Credentials
	err       error
}

func (a *fakeAdapter) Name() string             { return a.name }
func (a *fakeAdapter) Enabled() bool            { return true }
func (a *fakeAdapter) RequiresConnection() bool { return a.needsConn }

func (a *fakeAdapter) CreateCheckout(_ context.Context, req provider.CheckoutRequest, creds *provider.Credentials) (*provider.Checkout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, req)
	a.creds = append(a.creds, creds)
	if a.err != nil {
		return nil, a.err
	}
	return &provider.Checkout{
		CheckoutURL:          "https://checkout.example/" + req.IntentID,
		ProviderPreferenceID: "pref-" + req.MemberID,
	}, nil
}
