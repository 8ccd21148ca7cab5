package middleware

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/internal/pkg/usercontext"
)

func claims(sub, issuer, role string, exp time.Duration, tenants ...string) StaffClaims {
	return StaffClaims{
		Email:   sub + "@club.test",
		Role:    role,
		Tenants: tenants,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		},
	}
}

func TestJWTAuthenticator(t *testing.T) {
	t.Parallel()

	auth, err := NewJWTAuthenticator("secret", "clubdues")
	require.NoError(t, err)

	sign := func(c StaffClaims) string {
		tok, err := IssueStaffToken("secret", c)
		require.NoError(t, err)
		return tok
	}
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims("u1", "clubdues", "", time.Hour, "S1")).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	foreign, err := IssueStaffToken("other", claims("u1", "clubdues", "", time.Hour, "S1"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		ok    bool
		admin bool
	}{
		{name: "staff", token: sign(claims("u1", "clubdues", "", time.Hour, "S1")), ok: true},
		{name: "admin", token: sign(claims("u2", "clubdues", "Admin", time.Hour)), ok: true, admin: true},
		{name: "expired", token: sign(claims("u1", "clubdues", "", -time.Minute, "S1"))},
		{name: "wrong issuer", token: sign(claims("u1", "elsewhere", "", time.Hour, "S1"))},
		{name: "no subject", token: sign(claims("", "clubdues", "", time.Hour, "S1"))},
		{name: "alg none", token: noneToken},
		{name: "foreign secret", token: foreign},
		{name: "garbage", token: "not-a-jwt"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			user, err := auth.Authenticate(tc.token)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.True(t, user.IsLoggedIn)
			assert.Equal(t, tc.admin, user.IsAdmin)
		})
	}

	_, err = NewJWTAuthenticator("  ", "")
	assert.Error(t, err)
}

func TestStaffAuthAndTenantAccess(t *testing.T) {
	t.Parallel()

	auth, err := NewJWTAuthenticator("secret", "")
	require.NoError(t, err)
	app := fiber.New()
	app.All("/t", StaffAuth(auth), RequireTenantAccess, func(c *fiber.Ctx) error {
		return c.SendString(usercontext.GetUserID(c))
	})
	app.Get("/admin", StaffAuth(auth), RequireAdmin, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	staff, err := IssueStaffToken("secret", claims("u1", "", "", time.Hour, "S1"))
	require.NoError(t, err)
	admin, err := IssueStaffToken("secret", claims("root", "", "admin", time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		body   string
		status int
	}{
		{name: "no token", method: http.MethodGet, target: "/t?tenantId=S1", status: fiber.StatusUnauthorized},
		{name: "basic scheme", method: http.MethodGet, target: "/t?tenantId=S1", token: "Basic abc", status: fiber.StatusUnauthorized},
		{name: "own tenant", method: http.MethodGet, target: "/t?tenantId=S1", token: "Bearer " + staff, status: fiber.StatusOK},
		{name: "other tenant", method: http.MethodGet, target: "/t?tenantId=S2", token: "Bearer " + staff, status: fiber.StatusForbidden},
		{name: "tenant in body", method: http.MethodPost, target: "/t", token: "Bearer " + staff, body: `{"tenantId":"S1"}`, status: fiber.StatusOK},
		{name: "other tenant in body", method: http.MethodPost, target: "/t", token: "Bearer " + staff, body: `{"tenantId":"S2"}`, status: fiber.StatusForbidden},
		{name: "query and body disagree", method: http.MethodPost, target: "/t?tenantId=S1", token: "Bearer " + staff, body: `{"tenantId":"S2"}`, status: fiber.StatusForbidden},
		{name: "query and body agree", method: http.MethodPost, target: "/t?tenantId=S1", token: "Bearer " + staff, body: `{"tenantId":"S1"}`, status: fiber.StatusOK},
		{name: "missing tenant", method: http.MethodGet, target: "/t", token: "Bearer " + staff, status: fiber.StatusBadRequest},
		{name: "admin any tenant", method: http.MethodGet, target: "/t?tenantId=S9", token: "Bearer " + admin, status: fiber.StatusOK},
		{name: "admin route as staff", method: http.MethodGet, target: "/admin", token: "Bearer " + staff, status: fiber.StatusForbidden},
		{name: "admin route as admin", method: http.MethodGet, target: "/admin", token: "Bearer " + admin, status: fiber.StatusNoContent},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			require.NoError(t, err)
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			if tc.token != "" {
				req.Header.Set("Authorization", tc.token)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireTenantAccessStoresTenant(t *testing.T) {
	t.Parallel()

	auth, err := NewJWTAuthenticator("secret", "")
	require.NoError(t, err)
	app := fiber.New()
	app.Post("/t", StaffAuth(auth), RequireTenantAccess, func(c *fiber.Ctx) error {
		return c.SendString(usercontext.GetTenant(c))
	})
	staff, err := IssueStaffToken("secret", claims("u1", "", "", time.Hour, "S1"))
	require.NoError(t, err)

	// A body without a JSON content type still counts.
	req, err := http.NewRequest(http.MethodPost, "/t", strings.NewReader(`{"tenantId":" S1 "}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+staff)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "S1", string(got))
}
