package handlers

import (
	"strconv"

	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminHandler exposes the audited role and team administration endpoints.
type AdminHandler struct {
	roleService *services.RoleService
}

func NewAdminHandler(roleService *services.RoleService) *AdminHandler {
	return &AdminHandler{roleService: roleService}
}

func (h *AdminHandler) SetRole(c *fiber.Ctx) error {
	actorID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, services.ErrNotFound)
	}

	var req dto.SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	user, err := h.roleService.SetRole(c.UserContext(), actorID, userID, req.Role, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	member, err := h.roleService.TeamMemberFor(c.UserContext(), user.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewUserResponse(user, member))
}

func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	actorID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}
	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, services.ErrNotFound)
	}

	var req dto.SetActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	user, err := h.roleService.SetActive(c.UserContext(), actorID, userID, req.Active)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.NewUserResponse(user, nil))
}

func (h *AdminHandler) ProvisionTeamMember(c *fiber.Ctx) error {
	actorID, err := identity.UserID(c)
	if err != nil {
		return fail(c, services.ErrUnauthorized)
	}

	var req dto.ProvisionTeamMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	member, err := h.roleService.ProvisionTeamMember(c.UserContext(), actorID, req.UserID, req.Role, req.Department, req.Permissions)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

func (h *AdminHandler) UpdateTeamMember(c *fiber.Ctx) error {
	memberID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, services.ErrNotFound)
	}

	var req dto.UpdateTeamMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	member, err := h.roleService.UpdateTeamMember(c.UserContext(), memberID, req.Role, req.Department, req.Permissions)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(member)
}

func (h *AdminHandler) ListRoleGrants(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var userID *uuid.UUID
	if raw := c.Query("userId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fail(c, &services.ValidationError{Fields: map[string]string{"userId": "userId must be a UUID"}})
		}
		userID = &id
	}

	grants, total, err := h.roleService.ListGrants(c.UserContext(), userID, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"grants": grants,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// SEOAccess answers for routes guarded by the seo pseudo-role.
func (h *AdminHandler) SEOAccess(c *fiber.Ctx) error {
	id, _ := identity.Get(c)
	return c.JSON(fiber.Map{
		"allowed":  true,
		"role":     id.Role,
		"teamRole": id.TeamRole,
	})
}
