package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/ratelimit"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Account store configuration
	Database DatabaseConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Optional identity provider
	Identity IdentityConfig

	// Billing providers
	Paddle PaddleConfig
	Lemon  LemonConfig

	// AI provider used by the metered actions
	AI AIConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DatabaseConfig selects and tunes the account store
type DatabaseConfig struct {
	Driver          string // postgres or sqlite3
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RateLimitConfig holds limiter backend settings and policies
type RateLimitConfig struct {
	Backend          string // memory or redis
	RedisURL         string
	MaxKeysPerBucket int
	SweepSchedule    string
	PolicyFile       string
	Policies         map[string]ratelimit.Policy

	// FailClosed rejects metered requests with 503 while the store is down
	FailClosed bool
}

// IdentityConfig points at an OIDC issuer. An empty issuer disables
// identity resolution and every caller is anonymous.
type IdentityConfig struct {
	Issuer     string
	JWKSURL    string
	Audience   string
	CookieName string
}

// Enabled reports whether an identity provider is configured
func (c IdentityConfig) Enabled() bool {
	return c.Issuer != ""
}

// PaddleConfig holds Paddle Billing credentials
type PaddleConfig struct {
	APIBaseURL      string
	APIKey          string
	WebhookSecret   string
	BusinessPriceID string
	RequestTimeout  time.Duration
}

// LemonConfig holds Lemon Squeezy credentials
type LemonConfig struct {
	APIBaseURL        string
	APIKey            string
	WebhookSecret     string
	BusinessProductID string
	RequestTimeout    time.Duration
}

// AIConfig holds the Groq settings used for generation and transcription
type AIConfig struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	Timeout            time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	rl, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		RateLimit:     rl,
		Identity:      loadIdentityConfig(),
		Paddle:        loadPaddleConfig(),
		Lemon:         loadLemonConfig(),
		AI:            loadAIConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("METER_HOST", "0.0.0.0"),
		Port:            getEnv("METER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("METER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("METER_WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:     getEnvDuration("METER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("METER_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("METER_MAX_BODY_BYTES", 26<<20),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          getEnv("METER_DB_DRIVER", "sqlite3"),
		URL:             getEnv("METER_DB_URL", "file:meterd.db?_busy_timeout=5000&_journal_mode=WAL"),
		MaxOpenConns:    getEnvInt("METER_DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("METER_DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("METER_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		AutoMigrate:     getEnvBool("METER_DB_AUTO_MIGRATE", true),
	}
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	cfg := RateLimitConfig{
		Backend:          strings.ToLower(getEnv("METER_RATE_LIMIT_BACKEND", "memory")),
		RedisURL:         getEnv("METER_REDIS_URL", ""),
		MaxKeysPerBucket: getEnvInt("METER_RATE_LIMIT_MAX_KEYS", 100000),
		SweepSchedule:    getEnv("METER_RATE_LIMIT_SWEEP", "@every 5m"),
		PolicyFile:       getEnv("METER_RATE_LIMIT_FILE", ""),
		FailClosed:       getEnvBool("METER_RATE_LIMIT_FAIL_CLOSED", false),
		Policies:         ratelimit.DefaultPolicies(),
	}

	if cfg.PolicyFile != "" {
		overrides, err := LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return cfg, err
		}
		for bucket, policy := range overrides {
			cfg.Policies[bucket] = policy
		}
	}

	return cfg, nil
}

func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Issuer:     getEnv("METER_OIDC_ISSUER", ""),
		JWKSURL:    getEnv("METER_OIDC_JWKS_URL", ""),
		Audience:   getEnv("METER_OIDC_AUDIENCE", ""),
		CookieName: getEnv("METER_OIDC_COOKIE", "__session"),
	}
}

func loadPaddleConfig() PaddleConfig {
	base := "https://sandbox-api.paddle.com"
	if strings.EqualFold(getEnv("METER_PADDLE_ENVIRONMENT", "sandbox"), "production") {
		base = "https://api.paddle.com"
	}
	return PaddleConfig{
		APIBaseURL:      getEnv("METER_PADDLE_API_BASE_URL", base),
		APIKey:          getEnvFallback("METER_PADDLE_API_KEY", "PADDLE_API_KEY"),
		WebhookSecret:   getEnvFallback("METER_PADDLE_WEBHOOK_SECRET", "PADDLE_WEBHOOK_SECRET"),
		BusinessPriceID: getEnvFallback("METER_PADDLE_BUSINESS_PRICE_ID", "PADDLE_BUSINESS_PRICE_ID"),
		RequestTimeout:  getEnvDuration("METER_PADDLE_TIMEOUT", 10*time.Second),
	}
}

func loadLemonConfig() LemonConfig {
	return LemonConfig{
		APIBaseURL:        getEnv("METER_LEMON_API_BASE_URL", "https://api.lemonsqueezy.com/v1"),
		APIKey:            getEnvFallback("METER_LEMON_API_KEY", "LEMONSQUEEZY_API_KEY"),
		WebhookSecret:     getEnvFallback("METER_LEMON_WEBHOOK_SECRET", "LEMONSQUEEZY_WEBHOOK_SECRET"),
		BusinessProductID: getEnvFallback("METER_LEMON_BUSINESS_PRODUCT_ID", "LEMONSQUEEZY_BUSINESS_PRODUCT_ID"),
		RequestTimeout:    getEnvDuration("METER_LEMON_TIMEOUT", 10*time.Second),
	}
}

func loadAIConfig() AIConfig {
	return AIConfig{
		APIKey:             getEnvFallback("METER_GROQ_API_KEY", "GROQ_API_KEY"),
		BaseURL:            getEnv("METER_GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		ChatModel:          getEnv("METER_GROQ_CHAT_MODEL", "llama-3.3-70b-versatile"),
		TranscriptionModel: getEnv("METER_GROQ_TRANSCRIPTION_MODEL", "whisper-large-v3-turbo"),
		Timeout:            getEnvDuration("METER_GROQ_TIMEOUT", 60*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("METER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("METER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("METER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("METER_OTEL_SERVICE_NAME", "meterd"),
		OTelServiceVersion: getEnv("METER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("METER_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid. Missing billing or AI
// credentials are not errors: the affected endpoints answer 500/503 until
// they are configured.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}
	for bucket, policy := range c.RateLimit.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("rate limit policy %q: %w", bucket, err)
		}
	}

	if c.Identity.JWKSURL != "" && c.Identity.Issuer == "" {
		return fmt.Errorf("OIDC issuer is required when a JWKS URL is set")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFallback returns the first non-empty variable among keys
func getEnvFallback(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
