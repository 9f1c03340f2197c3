package handlers

import (
	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/brightpath/agency-portal/internal/middleware"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
	otpService  *services.OTPService
	cookie      middleware.SessionCookie
}

func NewAuthHandler(authService *services.AuthService, otpService *services.OTPService, cookie middleware.SessionCookie) *AuthHandler {
	return &AuthHandler{authService: authService, otpService: otpService, cookie: cookie}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	sess, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}

	h.cookie.Set(c, sess.Token)
	return c.Status(fiber.StatusCreated).JSON(dto.AuthResponse{
		Message: "Registration successful",
		User:    dto.NewUserResponse(sess.User, sess.TeamMember),
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	sess, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}

	h.cookie.Set(c, sess.Token)
	return c.JSON(dto.AuthResponse{
		Message: "Login successful",
		User:    dto.NewUserResponse(sess.User, sess.TeamMember),
	})
}

// Logout is public so that a client holding an expired or revoked token can
// still clear its cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token := middleware.BearerToken(c, h.cookie.Name)
	h.cookie.Clear(c)
	if err := h.authService.Logout(c.UserContext(), token); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.LogoutResponse{OK: true, Message: "Logged out successfully"})
}

func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	id, ok := identity.Get(c)
	if !ok {
		return fail(c, services.ErrUnauthorized)
	}

	h.cookie.Clear(c)
	cleared, err := h.authService.LogoutAll(c.UserContext(), id.UserID, id.Token)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(dto.LogoutAllResponse{
		Message:         "Logged out from all devices",
		SessionsCleared: cleared,
	})
}

func (h *AuthHandler) CurrentUser(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	user, member, err := h.authService.CurrentUser(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewUserResponse(user, member))
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	if err := h.authService.ChangePassword(c.UserContext(), userID, &req); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Password changed successfully"})
}

func (h *AuthHandler) DesktopLoginRequest(c *fiber.Ctx) error {
	var req dto.DesktopLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	if _, err := h.authService.RequestDesktopOTP(c.UserContext(), &req); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.DesktopLoginRequestResponse{
		Message:   "Login code sent to your mobile device",
		ExpiresIn: int(h.otpService.TTL().Seconds()),
	})
}

func (h *AuthHandler) DesktopLoginVerify(c *fiber.Ctx) error {
	var req dto.DesktopLoginVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	sess, err := h.authService.VerifyDesktopOTP(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}

	h.cookie.Set(c, sess.Token)
	return c.JSON(dto.AuthResponse{
		Message: "Login successful",
		User:    dto.NewUserResponse(sess.User, sess.TeamMember),
	})
}

// ProviderLogin serves /api/auth/:provider for the registered identity providers.
func (h *AuthHandler) ProviderLogin(provider string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.ProviderLoginRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}

		sess, err := h.authService.ProviderLogin(c.UserContext(), provider, req.IDToken)
		if err != nil {
			return fail(c, err)
		}

		h.cookie.Set(c, sess.Token)
		return c.JSON(dto.AuthResponse{
			Message: "Login successful",
			User:    dto.NewUserResponse(sess.User, sess.TeamMember),
		})
	}
}
