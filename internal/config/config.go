package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Stripe StripeConfig
	Redis  RedisConfig

	// SyncLeaseSeconds bounds how long a connection may stay in the
	// syncing state before readers treat the run as dead.
	SyncLeaseSeconds int

	SchedulerEnabled         bool
	SchedulerIntervalSeconds int
}

// StripeConfig carries platform-level vendor credentials. Per-organization
// credentials live on the integration connection record.
type StripeConfig struct {
	APIBaseURL        string
	PlatformSecretKey string
	LegacyAPIKey      string
	PageSize          int
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	LockTTLSeconds  int
	Enabled         bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "metricdock"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "metricdock"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Stripe: StripeConfig{
			APIBaseURL:        getenv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
			PlatformSecretKey: strings.TrimSpace(getenv("STRIPE_PLATFORM_SECRET_KEY", "")),
			LegacyAPIKey:      strings.TrimSpace(getenv("STRIPE_LEGACY_API_KEY", "")),
			PageSize:          getenvInt("STRIPE_PAGE_SIZE", 100),
		},
		Redis: RedisConfig{
			Addr:           strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:       strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:             getenvInt("REDIS_DB", 0),
			LockTTLSeconds: getenvInt("SYNC_LOCK_TTL_SECONDS", 900),
		},

		SyncLeaseSeconds: getenvInt("SYNC_LEASE_SECONDS", 1800),

		SchedulerEnabled:         getenvBool("SCHEDULER_ENABLED", false),
		SchedulerIntervalSeconds: getenvInt("SCHEDULER_INTERVAL_SECONDS", 3600),
	}
	cfg.Redis.Enabled = cfg.Redis.Addr != ""

	return cfg
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewSyncTuningHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
