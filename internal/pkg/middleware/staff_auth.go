package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v4"

	"github.com/ManuelReschke/ClubDues/internal/pkg/env"
	"github.com/ManuelReschke/ClubDues/internal/pkg/usercontext"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// StaffClaims are issued by the club management application.
type StaffClaims struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Role    string   `json:"role"`
	Tenants []string `json:"tenants"`
	jwt.RegisteredClaims
}

// StaffAuthenticator turns a bearer token into a staff user.
type StaffAuthenticator interface {
	Authenticate(rawToken string) (usercontext.UserContext, error)
}

// JWTAuthenticator verifies HS256 tokens signed with a shared secret.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

func NewJWTAuthenticator(secret, issuer string) (*JWTAuthenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("staff JWT secret is required")
	}
	return &JWTAuthenticator{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}, nil
}

// NewJWTAuthenticatorFromEnv reads STAFF_JWT_SECRET and STAFF_JWT_ISSUER.
func NewJWTAuthenticatorFromEnv() (*JWTAuthenticator, error) {
	return NewJWTAuthenticator(env.GetEnv("STAFF_JWT_SECRET", ""), env.GetEnv("STAFF_JWT_ISSUER", ""))
}

func (a *JWTAuthenticator) Authenticate(raw string) (usercontext.UserContext, error) {
	claims := &StaffClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !tok.Valid {
		return usercontext.UserContext{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return usercontext.UserContext{}, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return usercontext.UserContext{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = usercontext.RoleStaff
	}
	return usercontext.UserContext{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Role:        role,
		Tenants:     claims.Tenants,
		IsLoggedIn:  true,
		IsAdmin:     role == usercontext.RoleAdmin,
	}, nil
}

// IssueStaffToken signs claims with secret. Used by tooling and tests.
func IssueStaffToken(secret string, claims StaffClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// StaffAuth authenticates the bearer token and sets the user context. The
// request is rejected with 401 when the token is missing or invalid.
func StaffAuth(auth StaffAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearerToken(c)
		if raw == "" {
			return unauthorized(c, "Missing bearer token")
		}
		user, err := auth.Authenticate(raw)
		if err != nil {
			log.Infof("[Auth] Rejected staff token from %s: %v", c.IP(), err)
			return unauthorized(c, "Invalid or expired token")
		}
		usercontext.Set(c, user)
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	fields := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return strings.Trim(fields[1], "\"'")
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": msg})
}
