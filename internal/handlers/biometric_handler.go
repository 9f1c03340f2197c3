package handlers

import (
	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/brightpath/agency-portal/internal/middleware"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
)

type BiometricHandler struct {
	biometricService *services.BiometricService
}

func NewBiometricHandler(biometricService *services.BiometricService) *BiometricHandler {
	return &BiometricHandler{biometricService: biometricService}
}

func (h *BiometricHandler) Get(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	settings, err := h.biometricService.Get(c.UserContext(), userID, middleware.DeviceToken(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBiometricResponse(settings))
}

func (h *BiometricHandler) Setup(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	var req dto.BiometricSetupRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	in := services.BiometricSetup{
		BiometricType: req.BiometricType,
		Enabled:       true,
		PIN:           req.LocalPIN,
	}
	if req.Enabled != nil {
		in.Enabled = *req.Enabled
	}
	if len(req.Settings) > 0 && string(req.Settings) != "null" {
		in.Settings = datatypes.JSON(req.Settings)
	}

	settings, err := h.biometricService.Setup(c.UserContext(), userID, middleware.DeviceToken(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBiometricResponse(settings))
}

func (h *BiometricHandler) Toggle(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	var req dto.BiometricToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	settings, err := h.biometricService.Toggle(c.UserContext(), userID, middleware.DeviceToken(c), req.Enabled)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewBiometricResponse(settings))
}

func (h *BiometricHandler) VerifyPIN(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	var req dto.BiometricPINRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	ok, err := h.biometricService.VerifyPIN(c.UserContext(), userID, middleware.DeviceToken(c), req.PIN)
	if err != nil {
		return fail(c, err)
	}
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid PIN",
		})
	}
	return c.JSON(fiber.Map{"valid": true})
}

func (h *BiometricHandler) Delete(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	if err := h.biometricService.Delete(c.UserContext(), userID, middleware.DeviceToken(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Biometric settings removed"})
}
