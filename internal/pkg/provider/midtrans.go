package provider

import (
	"context"
	"errors"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
)

const (
	NameMidtrans = "midtrans"

	midtransCurrency = "IDR"
)

// Midtrans opens Snap checkouts on the platform's merchant account.
type Midtrans struct {
	ServerKey  string
	Production bool

	// create is replaced in tests.
	create func(req *snap.Request) (*snap.Response, *midtrans.Error)
}

func NewMidtransFromEnv() *Midtrans {
	return NewMidtrans(
		strings.TrimSpace(env.GetEnv("MIDTRANS_SERVER_KEY", "")),
		env.GetEnvBool("MIDTRANS_PRODUCTION", false),
	)
}

func NewMidtrans(serverKey string, production bool) *Midtrans {
	m := &Midtrans{ServerKey: serverKey, Production: production}
	var client snap.Client
	if production {
		client.New(serverKey, midtrans.Production)
	} else {
		client.New(serverKey, midtrans.Sandbox)
	}
	m.create = client.CreateTransaction
	return m
}

func (m *Midtrans) Name() string { return NameMidtrans }

func (m *Midtrans) Enabled() bool { return m.ServerKey != "" }

func (m *Midtrans) RequiresConnection() bool { return false }

func (m *Midtrans) CreateCheckout(ctx context.Context, req CheckoutRequest, _ *Credentials) (*Checkout, error) {
	if !strings.EqualFold(req.Currency, midtransCurrency) {
		return nil, apperr.ConfigurationErr("unsupported_currency", "Midtrans only accepts payments in IDR.")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, merr := m.create(buildSnapRequest(req))
	if merr != nil {
		upstream := merr.StatusCode == 0 || merr.StatusCode >= 500
		return nil, apperr.ProviderErr(NameMidtrans, upstream, merr)
	}
	if resp == nil || resp.Token == "" || resp.RedirectURL == "" {
		return nil, apperr.ProviderErr(NameMidtrans, true, errors.New("snap response without token or redirect_url"))
	}
	return &Checkout{CheckoutURL: resp.RedirectURL, ProviderPreferenceID: resp.Token}, nil
}

func buildSnapRequest(req CheckoutRequest) *snap.Request {
	gross := req.Amount.Round(0).IntPart()
	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.IntentID,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: strings.TrimSpace(req.MemberFirstName),
			LName: strings.TrimSpace(req.MemberLastName),
			Email: req.MemberEmail,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       req.Period,
			Name:     truncate(req.Title, 50),
			Price:    gross,
			Qty:      1,
			Category: "dues",
		}},
		CustomField1: req.TenantID,
		CustomField2: req.MemberID,
		CustomField3: req.Period,
	}
	if req.SuccessURL != "" {
		sr.Callbacks = &snap.Callbacks{Finish: req.SuccessURL}
	}
	return sr
}
