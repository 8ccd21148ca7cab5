package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
)

// CheckoutRequest is everything an adapter needs to open a checkout. It is
// passed by value and never modified by adapters.
type CheckoutRequest struct {
	IntentID        string
	TenantID        string
	MemberID        string
	MemberName      string // display form, "Last First"
	MemberFirstName string
	MemberLastName  string
	MemberEmail     string
	Period          string
	Title           string
	Amount          decimal.Decimal
	Currency        string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
}

// ExternalReference ties a provider payment back to the member period.
func (r CheckoutRequest) ExternalReference() string {
	return r.TenantID + "|" + r.MemberID + "|" + r.Period
}

// Checkout is the provider's answer to a checkout request.
type Checkout struct {
	CheckoutURL          string
	ProviderPreferenceID string
}

// Credentials are a tenant's decrypted provider tokens.
type Credentials struct {
	AccessToken    string
	RefreshToken   string
	ProviderUserID string
	ExpiresAt      *time.Time
}

// TokenSet is the result of an OAuth code exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UserID       string
}

// Adapter opens checkouts with one payment provider.
type Adapter interface {
	Name() string
	// Enabled reports whether platform credentials are configured.
	Enabled() bool
	// RequiresConnection reports whether checkouts need per-tenant credentials.
	RequiresConnection() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest, creds *Credentials) (*Checkout, error)
}

// OAuthAdapter is implemented by providers that connect tenant accounts.
type OAuthAdapter interface {
	Adapter
	AuthorizeURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)
}

// Registry resolves adapters by provider name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// NewRegistryFromEnv registers every supported provider.
func NewRegistryFromEnv() *Registry {
	return NewRegistry(
		NewMercadoPagoFromEnv(),
		NewDLocalFromEnv(),
		NewMidtransFromEnv(),
	)
}

// Get returns the enabled adapter for name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok || !a.Enabled() {
		return nil, apperr.ConfigurationErr("provider_unavailable",
			fmt.Sprintf("The payment provider %q is not available.", name))
	}
	return a, nil
}

// OAuth returns the adapter for name if it supports account connection.
func (r *Registry) OAuth(name string) (OAuthAdapter, bool) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	oa, ok := a.(OAuthAdapter)
	return oa, ok
}

// Names lists registered providers in alphabetical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// statusError converts a non-2xx provider response into a provider error.
func statusError(provider string, status int, body []byte) error {
	return apperr.ProviderErr(provider, status >= 500,
		fmt.Errorf("%s request failed: status=%d body=%s", provider, status, truncate(string(body), 512)))
}

// transportError marks network failures as upstream.
func transportError(provider string, err error) error {
	return apperr.ProviderErr(provider, true, fmt.Errorf("%s request: %w", provider, err))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
