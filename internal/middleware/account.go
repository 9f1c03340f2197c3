package middleware

import (
	"context"
	"errors"

	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/brightpath/agency-portal/internal/models"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AccountLoader reloads the account behind a verified token.
type AccountLoader interface {
	CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, *models.TeamMember, error)
}

// RefreshIdentity replaces the role claims of the request identity with the
// stored account, so deactivation and role changes apply to privileged routes
// before the token expires. Must run after VerifyJWT.
func RefreshIdentity(accounts AccountLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := identity.Get(c)
		if !ok {
			return unauthorized(c)
		}

		user, member, err := accounts.CurrentUser(c.UserContext(), id.UserID)
		if errors.Is(err, services.ErrUnauthorized) {
			return unauthorized(c)
		}
		if err != nil {
			return err
		}

		fresh := &identity.Identity{
			UserID: id.UserID,
			Email:  user.Email,
			Role:   user.Role,
			Token:  id.Token,
		}
		if member != nil {
			memberID := member.ID
			fresh.TeamRole = member.Role
			fresh.TeamMemberID = &memberID
			fresh.Permissions = member.Permissions()
		}
		identity.Set(c, fresh)
		return c.Next()
	}
}
