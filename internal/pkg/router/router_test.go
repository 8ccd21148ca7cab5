package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/app/controllers"
	"github.com/ManuelReschke/ClubDues/internal/pkg/middleware"
	"github.com/ManuelReschke/ClubDues/internal/pkg/provider"
)

func newTestRouterApp(t *testing.T, health HealthCheck) *fiber.App {
	t.Helper()
	auth, err := middleware.NewJWTAuthenticator("secret", "")
	require.NoError(t, err)

	app := fiber.New()
	InstallRouter(app, Deps{
		Payments:  controllers.NewPaymentController(nil),
		Providers: controllers.NewProviderController(provider.NewRegistry(), nil, nil, nil, "https://app.club.test"),
		Auth:      auth,
		Health:    health,
	})
	return app
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	app := newTestRouterApp(t, nil)
	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{name: "api root", method: http.MethodGet, target: "/api/", status: http.StatusOK},
		{name: "health", method: http.MethodGet, target: "/health", status: http.StatusOK},
		{name: "staff route needs token", method: http.MethodGet, target: "/api/payments/delinquents?tenantId=S1", status: http.StatusUnauthorized},
		{name: "intent needs token", method: http.MethodPost, target: "/api/payments/intent", body: `{}`, status: http.StatusUnauthorized},
		{name: "list needs token", method: http.MethodGet, target: "/api/payments?tenantId=S1", status: http.StatusUnauthorized},
		{name: "webhook is public", method: http.MethodPost, target: "/api/payments/webhook", body: `not json`, status: http.StatusBadRequest},
		{name: "callback redirects", method: http.MethodGet, target: "/api/payments/provider/callback?state=x&code=y", status: http.StatusSeeOther},
		{name: "unknown", method: http.MethodGet, target: "/api/payments/nope", status: http.StatusNotFound},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestHealthReportsFailingDependency(t *testing.T) {
	t.Parallel()

	app := newTestRouterApp(t, func(context.Context) map[string]bool {
		return map[string]bool{"database": true, "cache": false}
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
