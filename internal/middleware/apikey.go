package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/gofiber/fiber/v2"
)

const (
	APIKeyHeader      = "x-api-security-token"
	APIKeyHeaderAlias = "api-security-token"
)

// RequireAPIKey guards service-to-service endpoints with a static shared
// secret. With no key configured every request is refused.
func RequireAPIKey(key string) fiber.Handler {
	if key == "" {
		slog.Warn("API_SECURITY_TOKEN not set; api-key protected routes will reject all requests")
	}
	expected := []byte(key)

	return func(c *fiber.Ctx) error {
		presented := c.Get(APIKeyHeader)
		if presented == "" {
			presented = c.Get(APIKeyHeaderAlias)
		}
		if key == "" || presented == "" || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Unauthorized: invalid api security token",
			})
		}
		return c.Next()
	}
}
