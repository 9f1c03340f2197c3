package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/brightpath/agency-portal/internal/authz"
	"github.com/brightpath/agency-portal/internal/config"
	"github.com/brightpath/agency-portal/internal/database"
	"github.com/brightpath/agency-portal/internal/dto"
	"github.com/brightpath/agency-portal/internal/handlers"
	"github.com/brightpath/agency-portal/internal/logging"
	"github.com/brightpath/agency-portal/internal/middleware"
	"github.com/brightpath/agency-portal/internal/routes"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Structured logging (JSON to stdout)
	stdoutHandler := logging.Setup(os.Getenv("LOG_LEVEL") == "debug")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// ERROR+ records are also batched into system_logs
	dbLogHandler := logging.NewDBHandler(database.DB, 5*time.Second)
	slog.SetDefault(slog.New(logging.Tee(stdoutHandler, dbLogHandler)))

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Env,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		}
	}

	// Services
	hasher := services.NewPasswordHasher(services.MinBcryptCost)
	issuer, err := services.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		slog.Error("token issuer init failed", "error", err)
		os.Exit(1)
	}
	blacklist := services.NewTokenBlacklist(
		services.NewGormRevocationStore(database.DB),
		cfg.BlacklistFailOpen,
		cfg.BlacklistLookupTimeout,
	)
	if cfg.BlacklistFailOpen {
		slog.Warn("token blacklist is fail-open: revocations are not enforced while the database is unreachable")
	}

	var notifier services.PushNotifier = services.LogPushNotifier{}
	var amqpNotifier *services.AMQPPushNotifier
	if cfg.AMQPURL != "" {
		amqpNotifier = services.NewAMQPPushNotifier(cfg.AMQPURL, cfg.PushQueue)
		notifier = amqpNotifier
	}

	mobileService := services.NewMobileSessionService(database.DB)
	otpService := services.NewOTPService(database.DB, mobileService, notifier, cfg.OTPMasterCode, cfg.OTPTTL)
	roleService := services.NewRoleService(database.DB, cfg.AdminAllowList())
	biometricService := services.NewBiometricService(database.DB, hasher)
	authService := services.NewAuthService(database.DB, hasher, issuer, blacklist, mobileService, otpService, roleService)

	var providers []string
	if cfg.GoogleClientID != "" {
		authService.RegisterProvider(services.NewGoogleProvider(cfg.GoogleClientID))
		providers = append(providers, "google")
	}
	if cfg.FirebaseProjectID != "" {
		authService.RegisterProvider(services.NewFirebaseProvider(cfg.FirebaseProjectID))
		providers = append(providers, "firebase")
	}

	// Housekeeping of expired rows
	housekeeping := services.NewHousekeepingService(slog.Default(), cfg.HousekeepingInterval,
		services.CleanupTask{Name: "token_blacklist", Run: blacklist.PurgeExpired},
		services.CleanupTask{Name: "otp_codes", Run: otpService.DeleteExpired},
		services.CleanupTask{Name: "mobile_sessions", Run: func(ctx context.Context) (int64, error) {
			return mobileService.DeleteStale(ctx, time.Now().UTC().Add(-services.MobileSessionTTL))
		}},
		services.CleanupTask{Name: "system_logs", Run: func(ctx context.Context) (int64, error) {
			return logging.PurgeOlderThan(ctx, database.DB, logging.LogRetention)
		}},
	)
	housekeeping.Start()

	// Shared rate-limit counters
	var apiLimiter, authLimiter fiber.Storage
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		apiLimiter = middleware.NewRedisStorage(redisClient, "limiter:api:")
		authLimiter = middleware.NewRedisStorage(redisClient, "limiter:auth:")
	}

	// Handlers
	cookie := middleware.NewSessionCookie(cfg.IsProduction(), issuer.DefaultTTL())
	deps := routes.Deps{
		Auth:               handlers.NewAuthHandler(authService, otpService, cookie),
		Mobile:             handlers.NewMobileHandler(authService, mobileService),
		Biometric:          handlers.NewBiometricHandler(biometricService),
		Admin:              handlers.NewAdminHandler(roleService),
		Health:             handlers.NewHealthHandler(database.DB),
		VerifyJWT:          middleware.VerifyJWT(issuer, blacklist, cookie),
		RefreshIdentity:    middleware.RefreshIdentity(authService),
		APIKey:             middleware.RequireAPIKey(cfg.APISecurityToken),
		Policy:             authz.DefaultPolicy(),
		Providers:          providers,
		LimiterStorage:     apiLimiter,
		AuthLimiterStorage: authLimiter,
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Global middleware; recover wraps Sentry so re-panics are still caught
	app.Use(recover.New())
	if cfg.SentryDSN != "" {
		app.Use(sentryfiber.New(sentryfiber.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		return c.Next()
	})

	routes.Setup(app, deps)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	housekeeping.Stop()
	if amqpNotifier != nil {
		if err := amqpNotifier.Close(); err != nil {
			slog.Error("amqp close error", "error", err)
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

// customErrorHandler handles errors that escape the handlers, such as
// fiber.ErrNotFound for unknown routes or body limit violations.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	resp := dto.ErrorResponse{Error: true, Message: "Internal server error"}
	if code < fiber.StatusInternalServerError && fe != nil {
		resp.Message = fe.Message
	} else {
		requestID, _ := c.Locals("requestid").(string)
		slog.Error("unhandled server error",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	return c.Status(code).JSON(resp)
}
