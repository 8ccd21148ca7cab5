package usercontext

import "github.com/gofiber/fiber/v2"

// Staff roles.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// UserContext represents the authenticated staff user of a request
type UserContext struct {
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Role        string   `json:"role"`
	Tenants     []string `json:"tenants"`
	IsLoggedIn  bool     `json:"is_logged_in"`
	IsAdmin     bool     `json:"is_admin"`
}

// CanAccessTenant reports whether the user may act on tenantID. Admins may
// act on every tenant.
func (u UserContext) CanAccessTenant(tenantID string) bool {
	if !u.IsLoggedIn || tenantID == "" {
		return false
	}
	if u.IsAdmin {
		return true
	}
	for _, t := range u.Tenants {
		if t == tenantID {
			return true
		}
	}
	return false
}

// Set stores the context for the rest of the request.
func Set(c *fiber.Ctx, u UserContext) {
	c.Locals(KeyUserContext, u)
	c.Locals(KeyFromProtected, u.IsLoggedIn)
	c.Locals(KeyUserID, u.UserID)
	c.Locals(KeyIsAdmin, u.IsAdmin)
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the current user's ID, or "" if not logged in
func GetUserID(c *fiber.Ctx) string {
	return GetUserContext(c).UserID
}

// SetTenant records the tenant the request was authorized for.
func SetTenant(c *fiber.Ctx, tenantID string) {
	c.Locals(KeyTenantID, tenantID)
}

// GetTenant returns the authorized tenant, or "" outside RequireTenantAccess.
func GetTenant(c *fiber.Ctx) string {
	v, _ := c.Locals(KeyTenantID).(string)
	return v
}
