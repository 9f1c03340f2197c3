package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxTokenTTL is the hard upper bound for session token lifetimes.
const MaxTokenTTL = 7 * 24 * time.Hour

// devJWTSecret is used only when APP_ENV is not production and JWT_SECRET is unset.
const devJWTSecret = "insecure-development-secret-change-me"

// devMasterOTP is the bypass code accepted outside production when OTP_MASTER_CODE is unset.
const devMasterOTP = "999999"

type Config struct {
	Env  string
	Port string

	// Database
	DBDriver    string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Session tokens
	JWTSecret string
	JWTTTL    time.Duration

	// Static service key for the mobile session validation endpoint
	APISecurityToken string

	// Blacklist policy
	BlacklistFailOpen      bool
	BlacklistLookupTimeout time.Duration

	// Desktop OTP
	OTPMasterCode string
	OTPTTL        time.Duration

	// Explicit allow-list of addresses granted admin at registration
	BootstrapAdminEmails string

	// External identity providers
	GoogleClientID    string
	FirebaseProjectID string

	// Infra
	RedisURL             string
	AMQPURL              string
	PushQueue            string
	CORSOrigins          string
	HousekeepingInterval time.Duration
	SentryDSN            string
}

func Load() *Config {
	// A missing .env file is the normal case in deployed environments.
	_ = godotenv.Load()

	env := strings.ToLower(getEnv("APP_ENV", "development"))

	cfg := &Config{
		Env:  env,
		Port: getEnv("PORT", "8080"),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "agency_portal"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    parseDuration(getEnv("JWT_TTL", "168h"), MaxTokenTTL),

		APISecurityToken: getEnv("API_SECURITY_TOKEN", ""),

		BlacklistFailOpen:      parseBool(getEnv("BLACKLIST_FAIL_OPEN", "true"), true),
		BlacklistLookupTimeout: parseDuration(getEnv("BLACKLIST_LOOKUP_TIMEOUT", "5s"), 5*time.Second),

		OTPMasterCode: os.Getenv("OTP_MASTER_CODE"),
		OTPTTL:        parseDuration(getEnv("OTP_TTL", "5m"), 5*time.Minute),

		BootstrapAdminEmails: getEnv("BOOTSTRAP_ADMIN_EMAILS", ""),

		GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),

		RedisURL:             getEnv("REDIS_URL", ""),
		AMQPURL:              getEnv("AMQP_URL", ""),
		PushQueue:            getEnv("PUSH_QUEUE", "push.notifications"),
		CORSOrigins:          getEnv("CORS_ORIGINS", "http://localhost:5173"),
		HousekeepingInterval: parseDuration(getEnv("HOUSEKEEPING_INTERVAL", "1h"), time.Hour),
		SentryDSN:            getEnv("SENTRY_DSN", ""),
	}

	if cfg.JWTTTL > MaxTokenTTL {
		cfg.JWTTTL = MaxTokenTTL
	}

	if !cfg.IsProduction() {
		if cfg.JWTSecret == "" {
			slog.Warn("JWT_SECRET not set, using the insecure development secret")
			cfg.JWTSecret = devJWTSecret
		}
		if cfg.OTPMasterCode == "" {
			slog.Warn("OTP_MASTER_CODE not set, desktop login accepts the development master code", "env", cfg.Env)
			cfg.OTPMasterCode = devMasterOTP
		}
	}

	return cfg
}

// Validate reports configuration that must never reach a production process.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	if c.JWTSecret == "" || c.JWTSecret == devJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.APISecurityToken == "" {
		return errors.New("API_SECURITY_TOKEN must be set in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// DSN returns DATABASE_URL when set, otherwise a driver-specific DSN built from the DB_* variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	switch c.DBDriver {
	case "mysql":
		return c.DBUser + ":" + c.DBPassword +
			"@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName +
			"?charset=utf8mb4&parseTime=True&loc=UTC"
	case "sqlite":
		return c.DBName + ".db"
	}
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// AdminAllowList returns the normalized bootstrap admin addresses.
func (c *Config) AdminAllowList() []string {
	return ParseCSV(strings.ToLower(c.BootstrapAdminEmails))
}

func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
