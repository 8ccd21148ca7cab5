package controllers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/internal/pkg/apperr"
	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
	"github.com/ManuelReschke/ClubDues/internal/pkg/usercontext"
)

const (
	storeTimeout    = 15 * time.Second
	providerTimeout = 20 * time.Second
)

// respondError writes the JSON error body for err. Provider and internal
// failures are logged with the cause; the client only sees a generic message.
func respondError(c *fiber.Ctx, component string, err error) error {
	status := apperr.HTTPStatus(err)
	body := fiber.Map{
		"error":   apperr.Code(err),
		"message": apperr.PublicMessage(err),
	}
	if ae, ok := apperr.As(err); ok && len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}

	if status >= fiber.StatusInternalServerError {
		log.Errorf("[%s] %s %s failed: %v", component, c.Method(), c.Path(), err)
		if env.IsDev() {
			body["detail"] = err.Error()
		}
	} else {
		log.Infof("[%s] %s %s rejected (%d %s)", component, c.Method(), c.Path(), status, apperr.Code(err))
	}
	return c.Status(status).JSON(body)
}

func invalidPayload(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": msg})
}

// requestContext bounds work done on behalf of one request.
func requestContext(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), timeout)
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}

func queryTrimmed(c *fiber.Ctx, key string) string {
	return strings.TrimSpace(c.Query(key))
}

func requiredQuery(c *fiber.Ctx, key string) (string, error) {
	v := queryTrimmed(c, key)
	if v == "" {
		return "", apperr.ValidationErr(key+" is required.", map[string]string{key: key + " is required"})
	}
	return v, nil
}

// requiredTenant returns the tenant authorized by RequireTenantAccess, or
// reads tenantId from the query and JSON body when the guard did not run.
func requiredTenant(c *fiber.Ctx) (string, error) {
	if v := usercontext.GetTenant(c); v != "" {
		return v, nil
	}
	if v := queryTrimmed(c, "tenantId"); v != "" {
		return v, nil
	}
	var body struct {
		TenantID string `json:"tenantId"`
	}
	if raw := c.Body(); len(raw) > 0 && json.Unmarshal(raw, &body) == nil {
		if v := strings.TrimSpace(body.TenantID); v != "" {
			return v, nil
		}
	}
	return requiredQuery(c, "tenantId")
}

// bindTenant scopes a decoded request to the authorized tenant. An empty
// field is filled in; a different tenant is refused.
func bindTenant(c *fiber.Ctx, field *string) error {
	tenantID, err := requiredTenant(c)
	if err != nil {
		return err
	}
	got := strings.TrimSpace(*field)
	if got != "" && got != tenantID {
		return apperr.ForbiddenErr("No access to this tenant.")
	}
	*field = tenantID
	return nil
}
