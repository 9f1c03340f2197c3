package middleware

import (
	"strings"

	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/gofiber/fiber/v2"
)

const (
	DeviceTokenHeader = "x-device-token"
	deviceTokenKey    = "device_token"
)

// RequireDeviceToken scopes a request to the device named in x-device-token.
func RequireDeviceToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(DeviceTokenHeader))
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "x-device-token header is required",
				Fields:  map[string]string{"x-device-token": "device token is required"},
			})
		}
		c.Locals(deviceTokenKey, token)
		return c.Next()
	}
}

func DeviceToken(c *fiber.Ctx) string {
	token, _ := c.Locals(deviceTokenKey).(string)
	return token
}
