package identity

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const localsKey = "identity"

var ErrNoIdentity = errors.New("no identity in request context")

// Identity is the caller resolved from a verified session token.
type Identity struct {
	UserID       uuid.UUID
	Email        string
	Role         string
	TeamRole     string
	TeamMemberID *uuid.UUID
	Permissions  []string
	Token        string
}

func (i *Identity) HasPermission(permission string) bool {
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func Set(c *fiber.Ctx, id *Identity) {
	c.Locals(localsKey, id)
}

// Get returns the identity stored by the auth middleware.
func Get(c *fiber.Ctx) (*Identity, bool) {
	id, ok := c.Locals(localsKey).(*Identity)
	return id, ok && id != nil
}

func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := Get(c)
	if !ok {
		return uuid.Nil, ErrNoIdentity
	}
	return id.UserID, nil
}
