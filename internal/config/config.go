package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	NewRelic NewRelicConfig
	Stripe   StripeConfig
	Auth     AuthConfig
	Log      LogConfig
	Policy   PolicyConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	TLS         bool
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// RabbitMQConfig holds the broker used for outgoing SMS jobs.
// An empty URL disables the broker and SMS is only logged.
type RabbitMQConfig struct {
	URL      string
	SMSQueue string
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// StripeConfig holds payment processor configuration.
// An empty SecretKey selects the in-memory sandbox processor.
type StripeConfig struct {
	SecretKey string
	Currency  string
}

// AuthConfig holds identity resolution configuration.
type AuthConfig struct {
	JWTSecret           string
	JWTIssuer           string
	TrustedHeaders      bool
	UniversityDomain    string
	RequireVerifiedMail bool
	AdminUserIDs        []string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// PolicyConfig centralizes the marketplace rules the state machines apply.
type PolicyConfig struct {
	PlatformFeePercent     float64
	PenaltyPercent         float64
	PenaltyFreeStrikes     int
	LateCancellationWindow time.Duration
	StrikeDecay            time.Duration
	SettlementDeadline     time.Duration
	SweepInterval          time.Duration
	HubCity                string
	MinPriceCents          int64
	MaxPriceCents          int64
	MaxSeats               int
	PhoneCodeTTL           time.Duration
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "campusride"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getIntEnv("REDIS_DB", 0),
			TLS:         getBoolEnv("REDIS_TLS", false),
			PoolSize:    getIntEnv("REDIS_POOL_SIZE", 10),
			DialTimeout: getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout: getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			SMSQueue: getEnv("RABBITMQ_SMS_QUEUE", "notifications.sms"),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "campusride"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:  getEnv("STRIPE_CURRENCY", "usd"),
		},
		Auth: AuthConfig{
			JWTSecret:           getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:           getEnv("AUTH_JWT_ISSUER", ""),
			TrustedHeaders:      getBoolEnv("AUTH_TRUSTED_HEADERS", false),
			UniversityDomain:    getEnv("AUTH_UNIVERSITY_DOMAIN", ""),
			RequireVerifiedMail: getBoolEnv("AUTH_REQUIRE_VERIFIED_EMAIL", true),
			AdminUserIDs:        getListEnv("AUTH_ADMIN_USER_IDS"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Policy: PolicyConfig{
			PlatformFeePercent:     getFloatEnv("POLICY_PLATFORM_FEE_PERCENT", 7),
			PenaltyPercent:         getFloatEnv("POLICY_PENALTY_PERCENT", 20),
			PenaltyFreeStrikes:     getIntEnv("POLICY_PENALTY_FREE_STRIKES", 1),
			LateCancellationWindow: getDurationEnv("POLICY_LATE_CANCELLATION_WINDOW", 48*time.Hour),
			StrikeDecay:            getDurationEnv("POLICY_STRIKE_DECAY", 0),
			SettlementDeadline:     getDurationEnv("POLICY_SETTLEMENT_DEADLINE", 24*time.Hour),
			SweepInterval:          getDurationEnv("POLICY_SWEEP_INTERVAL", 24*time.Hour),
			HubCity:                getEnv("POLICY_HUB_CITY", "Ithaca"),
			MinPriceCents:          int64(getIntEnv("POLICY_MIN_PRICE_CENTS", 500)),
			MaxPriceCents:          int64(getIntEnv("POLICY_MAX_PRICE_CENTS", 20000)),
			MaxSeats:               getIntEnv("POLICY_MAX_SEATS", 8),
			PhoneCodeTTL:           getDurationEnv("POLICY_PHONE_CODE_TTL", 10*time.Minute),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
