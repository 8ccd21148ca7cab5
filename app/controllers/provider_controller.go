package controllers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/credentials"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

const providerSettingsPath = "/dashboard/payments"

// ProviderController connects tenant accounts of OAuth providers.
type ProviderController struct {
	registry   *provider.Registry
	signer     *credentials.StateSigner
	replay     credentials.ReplayGuard
	creds      *credentials.Manager
	appBaseURL string
}

// NewProviderController wires the OAuth flow. signer may be nil when
// OAUTH_STATE_SECRET is not set; connecting is then refused.
func NewProviderController(
	registry *provider.Registry,
	signer *credentials.StateSigner,
	replay credentials.ReplayGuard,
	creds *credentials.Manager,
	appBaseURL string,
) *ProviderController {
	if replay == nil {
		replay = credentials.NoopReplayGuard()
	}
	return &ProviderController{
		registry:   registry,
		signer:     signer,
		replay:     replay,
		creds:      creds,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// HandleConnect returns the provider authorization URL for the tenant.
func (pc *ProviderController) HandleConnect(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "OAuth", err)
	}
	name := strings.ToLower(c.Query("provider", provider.NameMercadoPago))

	adapter, ok := pc.registry.OAuth(name)
	if !ok {
		return respondError(c, "OAuth", apperr.ValidationErr("This provider does not support account connection.",
			map[string]string{"provider": "provider must support account connection"}))
	}
	if !adapter.Enabled() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   "integration_disabled",
			"message": "The integration is not enabled on this server.",
		})
	}
	if pc.signer == nil {
		return respondError(c, "OAuth", apperr.ConfigurationErr("oauth_not_configured", "OAuth is not configured on this server."))
	}

	state, err := pc.signer.Sign(tenantID)
	if err != nil {
		return respondError(c, "OAuth", apperr.ValidationErr("Invalid tenantId.", map[string]string{"tenantId": err.Error()}))
	}
	redirectURL, err := adapter.AuthorizeURL(state)
	if err != nil {
		log.Warnf("[OAuth] %s authorize URL unavailable: %v", name, err)
		return respondError(c, "OAuth", apperr.ConfigurationErr("oauth_not_configured", "OAuth is not configured on this server."))
	}
	return c.JSON(fiber.Map{"redirectUrl": redirectURL})
}

// HandleCallback completes the authorization. It always redirects back to
// the dashboard; tokens are stored only when every check passed.
func (pc *ProviderController) HandleCallback(c *fiber.Ctx) error {
	name := provider.NameMercadoPago

	if oauthErr := queryTrimmed(c, "error"); oauthErr != "" {
		return pc.redirectResult(c, name, false, "Authorization was denied: "+c.Query("error_description", oauthErr))
	}
	if pc.signer == nil {
		return pc.redirectResult(c, name, false, "OAuth is not configured on this server.")
	}

	state := queryTrimmed(c, "state")
	tenantID, err := pc.signer.Verify(state)
	if err != nil {
		log.Warnf("[OAuth] Rejected callback state from %s: %v", c.IP(), err)
		msg := "Invalid authorization state."
		if errors.Is(err, credentials.ErrStateExpired) {
			msg = "The authorization link expired. Please try again."
		}
		return pc.redirectResult(c, name, false, msg)
	}

	code := queryTrimmed(c, "code")
	if code == "" {
		return pc.redirectResult(c, name, false, "Missing authorization code.")
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	fresh, err := pc.replay.Consume(ctx, state, pc.signer.TTL())
	if err != nil {
		log.Errorf("[OAuth] Replay guard unavailable: %v", err)
		return pc.redirectResult(c, name, false, "Please try again in a moment.")
	}
	if !fresh {
		log.Warnf("[OAuth] State for tenant %s was already used", tenantID)
		return pc.redirectResult(c, name, false, "This authorization link was already used.")
	}

	adapter, ok := pc.registry.OAuth(name)
	if !ok || !adapter.Enabled() {
		return pc.redirectResult(c, name, false, "The integration is not enabled on this server.")
	}
	tokens, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		log.Errorf("[OAuth] %s code exchange for tenant %s failed: %v", name, tenantID, err)
		return pc.redirectResult(c, name, false, "Could not complete the connection with the provider.")
	}
	if err := pc.creds.Store(ctx, tenantID, name, tokens); err != nil {
		log.Errorf("[OAuth] Storing %s credentials for tenant %s failed: %v", name, tenantID, err)
		return pc.redirectResult(c, name, false, "Could not save the connection.")
	}

	log.Infof("[OAuth] Tenant %s connected %s", tenantID, name)
	return pc.redirectResult(c, name, true, "")
}

// HandleStatus reports whether the tenant has connected the provider.
func (pc *ProviderController) HandleStatus(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "OAuth", err)
	}
	name := strings.ToLower(c.Query("provider", provider.NameMercadoPago))

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	status, err := pc.creds.Status(ctx, tenantID, name)
	if err != nil {
		return respondError(c, "OAuth", err)
	}
	return c.JSON(status)
}

func (pc *ProviderController) redirectResult(c *fiber.Ctx, providerName string, connected bool, message string) error {
	result := "error"
	if connected {
		result = "connected"
	}
	target := pc.appBaseURL + providerSettingsPath + "?tab=config&" +
		url.QueryEscape(providerName) + "=" + result
	if message != "" {
		target += "&message=" + url.QueryEscape(message)
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}
