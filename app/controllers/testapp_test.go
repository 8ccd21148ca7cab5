package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository/memstore"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
	"github.com/ManuelReschke/ClubDues/internal/pkg/credentials"
	"github.com/ManuelReschke/ClubDues/internal/pkg/middleware"
	"github.com/ManuelReschke/ClubDues/internal/pkg/notify"
	"github.com/ManuelReschke/ClubDues/internal/pkg/payments"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

const (
	testJWTSecret     = "staff-secret"
	testWebhookSecret = "whsec_test"
	testStateSecret   = "state-secret"
)

var testNow = time.Date(2024, 6, 15, 14, 30, 0, 0, time.UTC)

type nopRelay struct {
	mu sync.Mutex
	n  int
}

func (r *nopRelay) Enqueue(context.Context, notify.Email) error {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
	return nil
}

type stubAdapter struct {
	name      string
	enabled   bool
	needsConn bool
	exchErr   error

	mu       sync.Mutex
	amounts  []decimal.Decimal
	exchange int
}

func (a *stubAdapter) Name() string             { return a.name }
func (a *stubAdapter) Enabled() bool            { return a.enabled }
func (a *stubAdapter) RequiresConnection() bool { return a.needsConn }

func (a *stubAdapter) CreateCheckout(_ context.Context, req provider.CheckoutRequest, _ *provider.Credentials) (*provider.Checkout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.amounts = append(a.amounts, req.Amount)
	return &provider.Checkout{CheckoutURL: "https://checkout.example/" + req.IntentID, ProviderPreferenceID: "pref-1"}, nil
}

func (a *stubAdapter) AuthorizeURL(state string) (string, error) {
	return "https://auth.example/authorization?state=" + url.QueryEscape(state), nil
}

func (a *stubAdapter) ExchangeCode(context.Context, string) (*provider.TokenSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exchange++
	if a.exchErr != nil {
		return nil, a.exchErr
	}
	return &provider.TokenSet{AccessToken: "APP_USR-1", RefreshToken: "TG-1", UserID: "77"}, nil
}

// checkoutOnly exposes a stubAdapter without its OAuth methods.
type checkoutOnly struct {
	a *stubAdapter
}

func (c checkoutOnly) Name() string             { return c.a.Name() }
func (c checkoutOnly) Enabled() bool            { return c.a.Enabled() }
func (c checkoutOnly) RequiresConnection() bool { return c.a.RequiresConnection() }

func (c checkoutOnly) CreateCheckout(ctx context.Context, req provider.CheckoutRequest, creds *provider.Credentials) (*provider.Checkout, error) {
	return c.a.CreateCheckout(ctx, req, creds)
}

type memoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memoryReplayGuard) Consume(_ context.Context, state string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[state] {
		return false, nil
	}
	g.seen[state] = true
	return true, nil
}

type testApp struct {
	app    *fiber.App
	store  *memstore.Store
	relay  *nopRelay
	mp     *stubAdapter
	dlocal *stubAdapter
	signer *credentials.StateSigner
	pay    *PaymentController
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	clk := clock.Fixed(testNow)
	store := memstore.New()
	repos := store.Repositories()
	store.SetConfig(models.PaymentConfig{TenantID: "S1", Amount: decimal.NewFromInt(15000), Currency: "ARS", DueDayOfMonth: 10})
	store.AddMember(models.Member{
		ID: "P1", TenantID: "S1", FirstName: "Juan", LastName: "Pérez", Email: "p1@example.com",
		Status: models.MemberStatusSuspended, CreatedAt: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC),
	})

	relay := &nopRelay{}
	dispatcher, err := notify.NewDispatcher(repos.EmailEvent, relay, clk)
	require.NoError(t, err)
	cipher, err := credentials.NewTokenCipher("0123456789abcdef-key")
	require.NoError(t, err)
	creds := credentials.NewManager(repos.ProviderConnection, cipher, clk)
	signer, err := credentials.NewStateSigner(testStateSecret, clk, credentials.DefaultStateTTL)
	require.NoError(t, err)

	mp := &stubAdapter{name: models.ProviderMercadoPago, enabled: true, needsConn: true}
	dl := &stubAdapter{name: models.ProviderDLocal, enabled: true}
	registry := provider.NewRegistry(mp, checkoutOnly{a: dl})

	svc := payments.NewServices(payments.Deps{
		Repos:    repos,
		Registry: registry,
		Creds:    creds,
		Notifier: dispatcher,
		Verifier: payments.NewSignatureVerifier(map[string]string{
			models.ProviderMercadoPago: testWebhookSecret,
			models.ProviderDLocal:      testWebhookSecret,
		}, clk, false),
		Clock: clk,
		URLs:  payments.URLs{APIBaseURL: "https://api.club.test", AppBaseURL: "https://app.club.test"},
	})

	auth, err := middleware.NewJWTAuthenticator(testJWTSecret, "clubdues")
	require.NoError(t, err)

	pay := NewPaymentController(svc)
	prov := NewProviderController(registry, signer, &memoryReplayGuard{seen: map[string]bool{}}, creds, "https://app.club.test/")

	app := fiber.New()
	api := app.Group("/api/payments")
	api.Post("/webhook", pay.HandleWebhook)
	api.Get("/provider/callback", prov.HandleCallback)

	staff := []fiber.Handler{middleware.StaffAuth(auth), middleware.RequireTenantAccess}
	with := func(h fiber.Handler) []fiber.Handler { return append(append([]fiber.Handler{}, staff...), h) }
	api.Get("/", with(pay.HandleListPayments)...)
	api.Post("/intent", with(pay.HandleCreateIntent)...)
	api.Get("/delinquents", with(pay.HandleDelinquents)...)
	api.Post("/delinquents/notify", with(pay.HandleNotifyDelinquents)...)
	api.Post("/manual", with(pay.HandleManualPayment)...)
	api.Get("/member", with(pay.HandleMemberSummary)...)
	api.Get("/config", with(pay.HandleGetConfig)...)
	api.Put("/config", with(pay.HandlePutConfig)...)
	api.Get("/provider/connect", with(prov.HandleConnect)...)
	api.Get("/provider/status", with(prov.HandleStatus)...)

	return &testApp{app: app, store: store, relay: relay, mp: mp, dlocal: dl, signer: signer, pay: pay}
}

func staffToken(t *testing.T, tenants ...string) string {
	t.Helper()
	tok, err := middleware.IssueStaffToken(testJWTSecret, middleware.StaffClaims{
		Email:   "tesorero@club.test",
		Name:    "Tesorería",
		Tenants: tenants,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-7",
			Issuer:    "clubdues",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, target, token string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}
