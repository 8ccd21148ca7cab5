package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClubDues/internal/pkg/constants"
	"github.com/ManuelReschke/ClubDues/internal/pkg/middleware"
	"github.com/ManuelReschke/ClubDues/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, ratelimit.New(h.deps.LimiterStorage))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	pay := h.deps.Payments
	prov := h.deps.Providers
	payments := api.Group(constants.PaymentsRoute)

	// Provider facing: authenticated by webhook signature or OAuth state.
	payments.Post(constants.PaymentWebhookPath, pay.HandleWebhook)
	payments.Get(constants.ProviderCallbackPath, prov.HandleCallback)

	// Staff facing.
	staff := h.staff
	payments.Get("/", staff(pay.HandleListPayments)...)
	payments.Post(constants.PaymentIntentPath, staff(pay.HandleCreateIntent)...)
	payments.Get(constants.DelinquentsPath, staff(pay.HandleDelinquents)...)
	payments.Post(constants.DelinquentsNotifyPath, staff(pay.HandleNotifyDelinquents)...)
	payments.Post(constants.ManualPaymentPath, staff(pay.HandleManualPayment)...)
	payments.Get(constants.MemberSummaryPath, staff(pay.HandleMemberSummary)...)
	payments.Get(constants.PaymentConfigPath, staff(pay.HandleGetConfig)...)
	payments.Put(constants.PaymentConfigPath, staff(pay.HandlePutConfig)...)
	payments.Get(constants.ProviderConnectPath, staff(prov.HandleConnect)...)
	payments.Get(constants.ProviderStatusPath, staff(prov.HandleStatus)...)
}

// staff guards h with bearer authentication and the tenant check.
func (h ApiRouter) staff(handler fiber.Handler) []fiber.Handler {
	return []fiber.Handler{middleware.StaffAuth(h.deps.Auth), middleware.RequireTenantAccess, handler}
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
