package middleware

import (
	"github.com/brightpath/agency-portal/internal/authz"
	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/gofiber/fiber/v2"
)

// RequireRole must run after VerifyJWT.
func RequireRole(policy *authz.Policy, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := identity.Get(c)
		if !ok {
			return unauthorized(c)
		}
		if !policy.Allows(id, roles...) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Forbidden: insufficient role",
			})
		}
		return c.Next()
	}
}
