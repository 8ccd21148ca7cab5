package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
)

const (
	NameDLocal = "dlocal"

	defaultDLocalBaseURL = "https://api.dlocalgo.com"
	defaultDLocalCountry = "AR"
)

// DLocal charges through the platform's dLocal Go account. Tenants do not
// connect their own account.
type DLocal struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	Country   string

	HTTPClient *http.Client
}

type dLocalPayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type dLocalPaymentRequest struct {
	Amount          json.RawMessage `json:"amount"`
	Currency        string          `json:"currency"`
	Country         string          `json:"country"`
	OrderID         string          `json:"order_id"`
	Description     string          `json:"description,omitempty"`
	SuccessURL      string          `json:"success_url,omitempty"`
	BackURL         string          `json:"back_url,omitempty"`
	NotificationURL string          `json:"notification_url,omitempty"`
	Payer           *dLocalPayer    `json:"payer,omitempty"`
}

type dLocalPaymentResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
	Status      string `json:"status"`
}

func NewDLocalFromEnv() *DLocal {
	return &DLocal{
		APIKey:    strings.TrimSpace(env.GetEnv("DLOCAL_API_KEY", "")),
		SecretKey: strings.TrimSpace(env.GetEnv("DLOCAL_SECRET_KEY", "")),
		BaseURL:   strings.TrimSpace(env.GetEnv("DLOCAL_BASE_URL", defaultDLocalBaseURL)),
		Country:   strings.TrimSpace(env.GetEnv("DLOCAL_COUNTRY", defaultDLocalCountry)),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (d *DLocal) Name() string { return NameDLocal }

func (d *DLocal) Enabled() bool {
	return d.APIKey != "" && d.SecretKey != ""
}

func (d *DLocal) RequiresConnection() bool { return false }

func (d *DLocal) CreateCheckout(ctx context.Context, req CheckoutRequest, _ *Credentials) (*Checkout, error) {
	body, err := json.Marshal(buildDLocalPayment(req, d.Country))
	if err != nil {
		return nil, err
	}
	url := strings.TrimRight(d.BaseURL, "/") + "/v1/payments"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.APIKey+":"+d.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, transportError(NameDLocal, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(NameDLocal, resp.StatusCode, raw)
	}

	var out dLocalPaymentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.ProviderErr(NameDLocal, true, fmt.Errorf("decode payment: %w", err))
	}
	if out.ID == "" || out.RedirectURL == "" {
		return nil, apperr.ProviderErr(NameDLocal, true, errors.New("payment response without id or redirect_url"))
	}
	return &Checkout{CheckoutURL: out.RedirectURL, ProviderPreferenceID: out.ID}, nil
}

func buildDLocalPayment(req CheckoutRequest, country string) dLocalPaymentRequest {
	if country == "" {
		country = defaultDLocalCountry
	}
	p := dLocalPaymentRequest{
		Amount:          json.RawMessage(req.Amount.StringFixed(2)),
		Currency:        req.Currency,
		Country:         country,
		OrderID:         req.IntentID,
		Description:     req.Title,
		SuccessURL:      req.SuccessURL,
		BackURL:         req.FailureURL,
		NotificationURL: req.NotificationURL,
	}
	if req.MemberName != "" || req.MemberEmail != "" {
		p.Payer = &dLocalPayer{Name: req.MemberName, Email: req.MemberEmail}
	}
	return p
}
