package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClubDues/app/controllers"
	"github.com/ManuelReschke/ClubDues/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries what the routers need from the application bootstrap.
type Deps struct {
	Payments       *controllers.PaymentController
	Providers      *controllers.ProviderController
	Auth           middleware.StaffAuthenticator
	LimiterStorage fiber.Storage
	Health         HealthCheck
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewHttpRouter(deps.Health), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
