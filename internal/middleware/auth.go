package middleware

import (
	"strings"

	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/identity"
	"github.com/brightpath/agency-portal/internal/services"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtContextKey = "jwt"

// BearerToken returns the token from the Authorization header, falling back
// to the session cookie.
func BearerToken(c *fiber.Ctx, cookieName string) string {
	if auth := c.Get(fiber.HeaderAuthorization); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return c.Cookies(cookieName)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:   true,
		Message: "Unauthorized: invalid or expired token",
	})
}

// VerifyJWT rejects requests without a live session token. The blacklist is
// consulted before the signature check, and the decoded claims are stored as
// the request identity.
func VerifyJWT(issuer *services.TokenIssuer, blacklist *services.TokenBlacklist, cookie SessionCookie) fiber.Handler {
	verify := jwtware.New(jwtware.Config{
		KeyFunc:     issuer.KeyFunc,
		Claims:      &services.SessionClaims{},
		ContextKey:  jwtContextKey,
		TokenLookup: "header:" + fiber.HeaderAuthorization + ",cookie:" + cookie.Name,
		AuthScheme:  "Bearer",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c)
		},
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals(jwtContextKey).(*jwt.Token)
			if !ok {
				return unauthorized(c)
			}
			id, ok := identityFromToken(token)
			if !ok {
				return unauthorized(c)
			}
			identity.Set(c, id)
			return c.Next()
		},
	})

	return func(c *fiber.Ctx) error {
		raw := BearerToken(c, cookie.Name)
		if raw == "" {
			return unauthorized(c)
		}
		if blacklist.IsRevoked(c.UserContext(), raw) {
			return unauthorized(c)
		}
		return verify(c)
	}
}

func identityFromToken(token *jwt.Token) (*identity.Identity, bool) {
	claims, ok := token.Claims.(*services.SessionClaims)
	if !ok || claims.ExpiresAt == nil {
		return nil, false
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, false
	}

	id := &identity.Identity{
		UserID:      userID,
		Email:       claims.Email,
		Role:        claims.Role,
		TeamRole:    claims.TeamRole,
		Permissions: claims.Permissions,
		Token:       token.Raw,
	}
	if claims.TeamMemberID != "" {
		if memberID, err := uuid.Parse(claims.TeamMemberID); err == nil {
			id.TeamMemberID = &memberID
		}
	}
	return id, true
}
