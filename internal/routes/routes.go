package routes

import (
	"time"

	"github.com/brightpath/agency-portal/internal/authz"
	"github.com/brightpath/agency-portal/internal/handlers"
	"github.com/brightpath/agency-portal/internal/middleware"
	"github.com/brightpath/agency-portal/internal/models"
	"github.com/gofiber/fiber/v2"
)

// Deps is everything Setup wires into the router.
type Deps struct {
	Auth      *handlers.AuthHandler
	Mobile    *handlers.MobileHandler
	Biometric *handlers.BiometricHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler

	VerifyJWT       fiber.Handler
	RefreshIdentity fiber.Handler
	APIKey          fiber.Handler
	Policy          *authz.Policy
	Providers       []string

	// LimiterStorage is nil for in-process counters.
	LimiterStorage     fiber.Storage
	AuthLimiterStorage fiber.Storage
	DisableRateLimit   bool
}

func Setup(app *fiber.App, d Deps) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	if !d.DisableRateLimit {
		api.Use(middleware.RateLimit(d.LimiterStorage, 60, time.Minute))
	}

	api.Get("/health", d.Health.Check)

	// Credential endpoints get a stricter 10 req/min per IP
	strict := func(c *fiber.Ctx) error { return c.Next() }
	if !d.DisableRateLimit {
		strict = middleware.RateLimit(d.AuthLimiterStorage, 10, time.Minute)
	}

	protected := d.VerifyJWT

	auth := api.Group("/auth")
	auth.Post("/register", strict, d.Auth.Register)
	auth.Post("/login", strict, d.Auth.Login)
	auth.Post("/logout", d.Auth.Logout)
	auth.Post("/logout-all", protected, d.Auth.LogoutAll)
	auth.Get("/user", protected, d.Auth.CurrentUser)
	auth.Post("/change-password", strict, protected, d.Auth.ChangePassword)
	auth.Post("/desktop-login-request", strict, d.Auth.DesktopLoginRequest)
	auth.Post("/desktop-login-verify", strict, d.Auth.DesktopLoginVerify)
	for _, provider := range d.Providers {
		auth.Post("/"+provider, strict, d.Auth.ProviderLogin(provider))
	}

	mobile := api.Group("/mobile")
	mobile.Post("/auth/login", strict, d.Mobile.Login)
	mobile.Post("/auth/register", strict, d.Mobile.Register)
	mobile.Post("/auth/logout", protected, d.Mobile.Logout)
	mobile.Get("/sessions", protected, d.Mobile.ListSessions)
	mobile.Delete("/sessions/:id", protected, d.Mobile.RevokeSession)
	mobile.Post("/validate-session", d.APIKey, d.Mobile.ValidateSession)

	biometric := mobile.Group("/biometric", protected, middleware.RequireDeviceToken())
	biometric.Get("/", d.Biometric.Get)
	biometric.Post("/setup", d.Biometric.Setup)
	biometric.Put("/toggle", d.Biometric.Toggle)
	biometric.Post("/verify-pin", strict, d.Biometric.VerifyPIN)
	biometric.Delete("/", d.Biometric.Delete)

	// Privileged routes check the stored account, not only the token claims.
	admin := api.Group("/admin", protected, d.RefreshIdentity, middleware.RequireRole(d.Policy, models.RoleAdmin))
	admin.Put("/users/:id/role", d.Admin.SetRole)
	admin.Put("/users/:id/active", d.Admin.SetActive)
	admin.Post("/team-members", d.Admin.ProvisionTeamMember)
	admin.Put("/team-members/:id", d.Admin.UpdateTeamMember)
	admin.Get("/role-grants", d.Admin.ListRoleGrants)

	api.Get("/seo/access", protected, d.RefreshIdentity, middleware.RequireRole(d.Policy, models.RoleAdmin, authz.TagSEO), d.Admin.SEOAccess)
}
