package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
)

const (
	NameMercadoPago = "mercadopago"

	defaultMercadoPagoAuthorizeURL = "https://auth.mercadopago.com/authorization"
	defaultMercadoPagoTokenURL     = "https://api.mercadopago.com/oauth/token"
	defaultMercadoPagoAPIBaseURL   = "https://api.mercadopago.com"

	// CallbackPath receives the OAuth redirect.
	CallbackPath = "/api/payments/provider/callback"
)

type MercadoPago struct {
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	UseTestTokens bool
	Sandbox       bool

	AuthURL    string
	TokenURL   string
	APIBaseURL string

	HTTPClient *http.Client
}

type mercadoPagoItem struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	UnitPrice  json.RawMessage `json:"unit_price"`
	CurrencyID string          `json:"currency_id"`
}

type mercadoPagoPayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type mercadoPagoBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type mercadoPagoPreference struct {
	Items             []mercadoPagoItem    `json:"items"`
	Payer             *mercadoPagoPayer    `json:"payer,omitempty"`
	ExternalReference string               `json:"external_reference"`
	NotificationURL   string               `json:"notification_url,omitempty"`
	BackURLs          *mercadoPagoBackURLs `json:"back_urls,omitempty"`
	AutoReturn        string               `json:"auto_return,omitempty"`
	Metadata          map[string]string    `json:"metadata"`
}

type mercadoPagoPreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

func NewMercadoPagoFromEnv() *MercadoPago {
	apiBase := strings.TrimRight(env.GetEnv("API_BASE_URL", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("MERCADOPAGO_REDIRECT_URI", ""))
	if redirectURI == "" && apiBase != "" {
		redirectURI = apiBase + CallbackPath
	}

	return &MercadoPago{
		ClientID:      strings.TrimSpace(env.GetEnv("MERCADOPAGO_CLIENT_ID", "")),
		ClientSecret:  strings.TrimSpace(env.GetEnv("MERCADOPAGO_CLIENT_SECRET", "")),
		RedirectURI:   redirectURI,
		UseTestTokens: env.GetEnvBool("MERCADOPAGO_USE_TEST_TOKENS", false),
		Sandbox:       env.GetEnvBool("MERCADOPAGO_SANDBOX", false),
		AuthURL:       strings.TrimSpace(env.GetEnv("MERCADOPAGO_AUTHORIZE_URL", defaultMercadoPagoAuthorizeURL)),
		TokenURL:      strings.TrimSpace(env.GetEnv("MERCADOPAGO_TOKEN_URL", defaultMercadoPagoTokenURL)),
		APIBaseURL:    strings.TrimSpace(env.GetEnv("MERCADOPAGO_API_BASE_URL", defaultMercadoPagoAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (m *MercadoPago) Name() string { return NameMercadoPago }

func (m *MercadoPago) Enabled() bool {
	return m.ClientID != "" && m.ClientSecret != ""
}

func (m *MercadoPago) RequiresConnection() bool { return true }

func (m *MercadoPago) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.ClientID,
		ClientSecret: m.ClientSecret,
		RedirectURL:  m.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.AuthURL,
			TokenURL:  m.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizeURL builds the URL the tenant admin is redirected to.
func (m *MercadoPago) AuthorizeURL(state string) (string, error) {
	if !m.Enabled() {
		return "", errors.New("MERCADOPAGO_CLIENT_ID/MERCADOPAGO_CLIENT_SECRET are not configured")
	}
	if m.RedirectURI == "" {
		return "", errors.New("API_BASE_URL or MERCADOPAGO_REDIRECT_URI is not configured")
	}
	return m.oauthConfig().AuthCodeURL(state, oauth2.SetAuthURLParam("platform_id", "mp")), nil
}

// ExchangeCode trades the authorization code for tenant tokens.
func (m *MercadoPago) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	if !m.Enabled() {
		return nil, errors.New("MERCADOPAGO_CLIENT_ID/MERCADOPAGO_CLIENT_SECRET are not configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperr.ValidationErr("Missing authorization code.", nil)
	}

	var opts []oauth2.AuthCodeOption
	if m.UseTestTokens {
		opts = append(opts, oauth2.SetAuthURLParam("test_token", "true"))
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.HTTPClient)
	tok, err := m.oauthConfig().Exchange(ctx, strings.TrimSpace(code), opts...)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, statusError(NameMercadoPago, rerr.Response.StatusCode, rerr.Body)
		}
		return nil, transportError(NameMercadoPago, err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return nil, apperr.ProviderErr(NameMercadoPago, true, errors.New("token exchange returned empty access_token"))
	}

	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		UserID:       extraString(tok.Extra("user_id")),
	}, nil
}

// CreateCheckout creates a checkout preference on the tenant's account.
func (m *MercadoPago) CreateCheckout(ctx context.Context, req CheckoutRequest, creds *Credentials) (*Checkout, error) {
	if creds == nil || strings.TrimSpace(creds.AccessToken) == "" {
		return nil, apperr.ConfigurationErr("provider_not_connected",
			"Connect your Mercado Pago account in Payments > Settings before charging online.")
	}

	body, err := json.Marshal(buildMercadoPagoPreference(req))
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(m.APIBaseURL, "/") + "/checkout/preferences"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.IntentID)

	resp, err := m.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, transportError(NameMercadoPago, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(NameMercadoPago, resp.StatusCode, raw)
	}

	var out mercadoPagoPreferenceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.ProviderErr(NameMercadoPago, true, fmt.Errorf("decode preference: %w", err))
	}
	checkoutURL := out.InitPoint
	if m.Sandbox && out.SandboxInitPoint != "" {
		checkoutURL = out.SandboxInitPoint
	}
	if out.ID == "" || checkoutURL == "" {
		return nil, apperr.ProviderErr(NameMercadoPago, true, errors.New("preference response without id or init_point"))
	}
	return &Checkout{CheckoutURL: checkoutURL, ProviderPreferenceID: out.ID}, nil
}

func buildMercadoPagoPreference(req CheckoutRequest) mercadoPagoPreference {
	pref := mercadoPagoPreference{
		Items: []mercadoPagoItem{{
			ID:         req.Period,
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  json.RawMessage(req.Amount.StringFixed(2)),
			CurrencyID: req.Currency,
		}},
		ExternalReference: req.ExternalReference(),
		NotificationURL:   req.NotificationURL,
		Metadata: map[string]string{
			"tenant_id": req.TenantID,
			"member_id": req.MemberID,
			"period":    req.Period,
			"intent_id": req.IntentID,
		},
	}
	if req.MemberName != "" || req.MemberEmail != "" {
		pref.Payer = &mercadoPagoPayer{Name: req.MemberName, Email: req.MemberEmail}
	}
	if req.SuccessURL != "" {
		pref.BackURLs = &mercadoPagoBackURLs{Success: req.SuccessURL, Failure: req.FailureURL, Pending: req.SuccessURL}
		pref.AutoReturn = "approved"
	}
	return pref
}

func extraString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}
