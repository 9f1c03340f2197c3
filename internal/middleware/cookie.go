package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const SessionCookieName = "authToken"

// SessionCookie holds the attributes of the session cookie. The same value is
// used to set and to clear it, so a clear always matches the original.
type SessionCookie struct {
	Name     string
	Secure   bool
	SameSite string
	MaxAge   time.Duration
	Path     string
}

func NewSessionCookie(production bool, maxAge time.Duration) SessionCookie {
	return SessionCookie{
		Name:     SessionCookieName,
		Secure:   production,
		SameSite: fiber.CookieSameSiteStrictMode,
		MaxAge:   maxAge,
		Path:     "/",
	}
}

func (sc SessionCookie) Set(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     sc.Name,
		Value:    token,
		Path:     sc.Path,
		MaxAge:   int(sc.MaxAge.Seconds()),
		Expires:  time.Now().Add(sc.MaxAge),
		Secure:   sc.Secure,
		HTTPOnly: true,
		SameSite: sc.SameSite,
	})
}

func (sc SessionCookie) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sc.Name,
		Value:    "",
		Path:     sc.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   sc.Secure,
		HTTPOnly: true,
		SameSite: sc.SameSite,
	})
}
