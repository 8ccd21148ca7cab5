package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClubDues/internal/pkg/constants"
)

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) map[string]bool

type HttpRouter struct {
	health HealthCheck
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, h.handleHealth)
}

func NewHttpRouter(health HealthCheck) *HttpRouter {
	return &HttpRouter{health: health}
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	checks := map[string]bool{}
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		checks = h.health(ctx)
	}

	status := fiber.StatusOK
	for _, ok := range checks {
		if !ok {
			status = fiber.StatusServiceUnavailable
		}
	}
	return c.Status(status).JSON(fiber.Map{"ok": status == fiber.StatusOK, "checks": checks})
}
