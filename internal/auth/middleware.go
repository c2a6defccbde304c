package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalTenantID = "tenant_id"
	LocalUserID   = "user_id"
)

// Middleware authenticates requests with a Bearer token and stores the
// verified identity in the request locals. Everything behind it can trust
// TenantID(c) unconditionally.
func Middleware(tokens *TokenManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization header must be a bearer token")
		}

		claims, err := tokens.Verify(tokenString)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals(LocalTenantID, claims.TenantID)
		c.Locals(LocalUserID, claims.Subject)

		return c.Next()
	}
}

// TenantID returns the authenticated tenant id, or "" when the request did
// not pass through Middleware.
func TenantID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalTenantID).(string)
	return id
}

func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
