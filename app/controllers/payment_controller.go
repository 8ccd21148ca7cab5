package controllers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/internal/pkg/payments"
	"github.com/ManuelReschke/ClubDues/internal/pkg/usercontext"
)

// PaymentController serves the /api/payments routes.
type PaymentController struct {
	svc *payments.Services
}

func NewPaymentController(svc *payments.Services) *PaymentController {
	return &PaymentController{svc: svc}
}

// HandleCreateIntent opens a checkout for one member period.
func (pc *PaymentController) HandleCreateIntent(c *fiber.Ctx) error {
	var req payments.CreateIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c, "Request body must be a JSON object.")
	}
	if err := bindTenant(c, &req.TenantID); err != nil {
		return respondError(c, "Intent", err)
	}

	ctx, cancel := requestContext(c, providerTimeout)
	defer cancel()

	res, err := pc.svc.Intents.CreateIntent(ctx, req)
	if err != nil {
		return respondError(c, "Intent", err)
	}
	return c.JSON(res)
}

// HandleWebhook ingests a normalized provider notification. Replays are
// answered 200 with duplicate=true so the provider stops retrying.
func (pc *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)

	var payload payments.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return invalidPayload(c, "Webhook body must be a JSON object.")
	}

	providerName := strings.ToLower(strings.TrimSpace(payload.Provider))
	sigErr := pc.svc.Verifier.Verify(providerName, rawBody, c.Get(payments.SignatureHeader))
	if sigErr != nil {
		log.Warnf("[Webhook] Signature check failed for %s delivery from %s: %v", providerName, c.IP(), sigErr)
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	res, err := pc.svc.Webhooks.Process(ctx, payments.WebhookDelivery{
		Payload:        payload,
		Raw:            rawBody,
		DeliveryID:     firstHeaderValue(c, "X-Delivery-Id", "X-Request-Id"),
		SignatureValid: sigErr == nil,
	})
	if err != nil {
		return respondError(c, "Webhook", err)
	}
	if res.Duplicate {
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// HandleDelinquents lists the tenant's delinquent members.
func (pc *PaymentController) HandleDelinquents(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "Delinquency", err)
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	list, err := pc.svc.Engine.ComputeDelinquents(ctx, tenantID)
	if err != nil {
		return respondError(c, "Delinquency", err)
	}
	return c.JSON(fiber.Map{"delinquents": list})
}

// HandleNotifyDelinquents sends reminders and suspends long-overdue members.
func (pc *PaymentController) HandleNotifyDelinquents(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "Dunning", err)
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	res, err := pc.svc.Dunning.Run(ctx, tenantID)
	if err != nil {
		return respondError(c, "Dunning", err)
	}
	return c.JSON(res)
}

// HandleManualPayment records a payment collected in person by staff.
func (pc *PaymentController) HandleManualPayment(c *fiber.Ctx) error {
	var req payments.ManualPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c, "Request body must be a JSON object.")
	}
	if err := bindTenant(c, &req.TenantID); err != nil {
		return respondError(c, "ManualPayment", err)
	}

	user := usercontext.GetUserContext(c)
	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	p, err := pc.svc.Manual.Record(ctx, req, payments.Collector{
		UID:         user.UserID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
	if err != nil {
		return respondError(c, "ManualPayment", err)
	}
	return c.JSON(fiber.Map{"ok": true, "paymentId": p.ID})
}

// HandleListPayments returns one page of the tenant's payments.
func (pc *PaymentController) HandleListPayments(c *fiber.Ctx) error {
	var req payments.ListPaymentsRequest
	if err := c.QueryParser(&req); err != nil {
		return invalidPayload(c, "Invalid query parameters.")
	}
	if err := bindTenant(c, &req.TenantID); err != nil {
		return respondError(c, "Payments", err)
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	page, err := pc.svc.Ledger.ListPayments(ctx, req)
	if err != nil {
		return respondError(c, "Payments", err)
	}
	return c.JSON(page)
}

// HandleMemberSummary returns a member's payments and next obligation.
func (pc *PaymentController) HandleMemberSummary(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "Payments", err)
	}
	memberID, err := requiredQuery(c, "memberId")
	if err != nil {
		return respondError(c, "Payments", err)
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	sum, err := pc.svc.Summaries.ForMember(ctx, tenantID, memberID)
	if err != nil {
		return respondError(c, "Payments", err)
	}
	return c.JSON(sum)
}

// HandleGetConfig returns the tenant's fee configuration.
func (pc *PaymentController) HandleGetConfig(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "PaymentConfig", err)
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	cfg, err := pc.svc.Pricing.Config(ctx, tenantID)
	if err != nil {
		return respondError(c, "PaymentConfig", err)
	}
	return c.JSON(cfg)
}

// HandlePutConfig replaces the tenant's fee configuration.
func (pc *PaymentController) HandlePutConfig(c *fiber.Ctx) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return respondError(c, "PaymentConfig", err)
	}
	var req payments.PaymentConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(c, "Request body must be a JSON object.")
	}

	ctx, cancel := requestContext(c, storeTimeout)
	defer cancel()

	cfg, err := pc.svc.Pricing.SaveConfig(ctx, tenantID, req)
	if err != nil {
		return respondError(c, "PaymentConfig", err)
	}
	log.Infof("[PaymentConfig] Tenant %s fee set to %s %s by %s", tenantID, cfg.Amount.StringFixed(2), cfg.Currency, usercontext.GetUserID(c))
	return c.JSON(cfg)
}
