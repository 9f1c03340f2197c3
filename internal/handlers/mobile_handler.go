package handlers

import (
	"time"

	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type MobileHandler struct {
	authService   *services.AuthService
	mobileService *services.MobileSessionService
}

func NewMobileHandler(authService *services.AuthService, mobileService *services.MobileSessionService) *MobileHandler {
	return &MobileHandler{authService: authService, mobileService: mobileService}
}

func mobileAuthResponse(message string, sess *services.Session) dto.MobileAuthResponse {
	resp := dto.MobileAuthResponse{
		Message:   message,
		User:      dto.NewUserResponse(sess.User, sess.TeamMember),
		Token:     sess.Token,
		ExpiresIn: int64(time.Until(sess.ExpiresAt).Seconds()),
	}
	if sess.MobileSession != nil {
		resp.SessionToken = sess.MobileSession.SessionToken
	}
	return resp
}

func (h *MobileHandler) Login(c *fiber.Ctx) error {
	var req dto.MobileLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	sess, err := h.authService.MobileLogin(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(mobileAuthResponse("Login successful", sess))
}

func (h *MobileHandler) Register(c *fiber.Ctx) error {
	var req dto.MobileRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	sess, err := h.authService.MobileRegister(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(mobileAuthResponse("Registration successful", sess))
}

func (h *MobileHandler) Logout(c *fiber.Ctx) error {
	id, ok := identity.Get(c)
	if !ok {
		return fail(c, services.ErrUnauthorized)
	}

	var req dto.MobileLogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(c)
		}
	}

	if err := h.authService.MobileLogout(c.UserContext(), id.UserID, id.Token, req.DeviceToken); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.LogoutResponse{OK: true, Message: "Logged out successfully"})
}

func (h *MobileHandler) ListSessions(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	sessions, err := h.mobileService.ListActive(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}

	out := make([]dto.MobileSessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, dto.NewMobileSessionResponse(&sessions[i]))
	}
	return c.JSON(fiber.Map{"sessions": out})
}

func (h *MobileHandler) RevokeSession(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, services.ErrNotFound)
	}

	if err := h.mobileService.Revoke(c.UserContext(), userID, sessionID); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Session revoked"})
}

// ValidateSession is called by trusted services holding the API key, not by
// end users.
func (h *MobileHandler) ValidateSession(c *fiber.Ctx) error {
	var req dto.ValidateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	session, err := h.mobileService.Validate(c.UserContext(), userID, req.DeviceToken, req.SessionToken)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.ValidateSessionResponse{Valid: true, ExpiresAt: session.SessionExpiry})
}
