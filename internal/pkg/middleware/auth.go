package middleware

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClubDues/internal/pkg/usercontext"
)

// RequireStaff returns JSON 401 when StaffAuth did not authenticate the request.
func RequireStaff(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorized(c, "login required")
	}
	return c.Next()
}

// RequireAdmin only lets admins through.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorized(c, "login required")
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "admin role required"})
	}
	return c.Next()
}

// RequireTenantAccess resolves the request's tenant from the tenantId query
// parameter and JSON body field, checks it against the staff user's tenants
// and stores it for the handler. A query and body that name different
// tenants are refused.
func RequireTenantAccess(c *fiber.Ctx) error {
	queryTenant := strings.TrimSpace(c.Query("tenantId"))
	bodyTenant := bodyTenantID(c.Body())

	if queryTenant != "" && bodyTenant != "" && queryTenant != bodyTenant {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "tenantId in query and body differ"})
	}
	tenantID := queryTenant
	if tenantID == "" {
		tenantID = bodyTenant
	}
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "tenantId is required",
			"fields":  fiber.Map{"tenantId": "tenantId is required"},
		})
	}
	if !usercontext.GetUserContext(c).CanAccessTenant(tenantID) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "no access to this tenant"})
	}
	usercontext.SetTenant(c, tenantID)
	return c.Next()
}

func bodyTenantID(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var body struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.TenantID)
}
