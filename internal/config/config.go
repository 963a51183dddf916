package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewTunablesHolder),
	fx.Invoke(Validate),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	CompanyName    string
	CompanyAddress string
	CompanyEmail   string

	HTTPAddr string

	SnowflakeNode int64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AdminEmail    string
	AdminPassword string

	OTLPEndpoint string

	Telemetry TelemetryPushConfig
}

// TelemetryPushConfig configures the optional metrics push channel.
type TelemetryPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "fleetcore"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		CompanyName:    getenv("COMPANY_NAME", "Karsada Fleet Services"),
		CompanyAddress: getenv("COMPANY_ADDRESS", "Quezon City, Metro Manila"),
		CompanyEmail:   getenv("COMPANY_EMAIL", "billing@karsada.ph"),

		SnowflakeNode: int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fleetcore"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONNS", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONNS", 10),
		DBConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		DBConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		JWTSecret:     strings.TrimSpace(getenv("JWT_SECRET", "")),
		JWTIssuer:     getenv("JWT_ISSUER", "fleetcore"),
		JWTAudience:   getenv("JWT_AUDIENCE", "fleetcore-api"),
		AccessTTL:     getenvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getenvDuration("JWT_REFRESH_TTL", 720*time.Hour),
		AdminEmail:    strings.TrimSpace(getenv("ADMIN_EMAIL", "")),
		AdminPassword: getenv("ADMIN_PASSWORD", ""),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		Telemetry: TelemetryPushConfig{
			Enabled:   getenvBool("TELEMETRY_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("TELEMETRY_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("TELEMETRY_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("TELEMETRY_PUSH_AUTH_TOKEN", "")),
		},
	}

	return cfg
}

// Validate rejects configurations that must never reach production.
func Validate(cfg Config) error {
	if cfg.IsDev() {
		return nil
	}
	if len(cfg.JWTSecret) < 64 {
		return fmt.Errorf("JWT_SECRET must be at least 64 characters, got %d", len(cfg.JWTSecret))
	}
	return nil
}

// IsDev reports whether the service runs in a development-like environment.
func (c Config) IsDev() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	switch env {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
