// Package config loads the chat API settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"

	"agentforge/chat-api/internal/domain/retry"
)

// Config holds the environment driven configuration for the chat API.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"chat-api"`
	ServiceVersion  string        `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8090"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Storage. An empty DATABASE_URL selects in-memory repositories.
	DatabaseURL    string        `env:"DATABASE_URL"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBLogLevel     string        `env:"DB_LOG_LEVEL" envDefault:"warn"`
	DBAutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	RedisURL       string        `env:"REDIS_URL"`

	AuthJWKSURL     string        `env:"AUTH_JWKS_URL"`
	AuthHMACSecret  string        `env:"AUTH_HMAC_SECRET"`
	AuthIssuer      string        `env:"AUTH_ISSUER"`
	AuthAudience    string        `env:"AUTH_AUDIENCE"`
	AuthJWKSRefresh time.Duration `env:"AUTH_JWKS_REFRESH" envDefault:"10m"`
	AuthClockSkew   time.Duration `env:"AUTH_CLOCK_SKEW" envDefault:"30s"`

	ModelsFile          string        `env:"MODELS_FILE"`
	DefaultModel        string        `env:"DEFAULT_MODEL" envDefault:"chat-fast"`
	TitleModel          string        `env:"TITLE_MODEL"`
	DefaultSystemPrompt string        `env:"DEFAULT_SYSTEM_PROMPT"`
	LLMTimeout          time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	BackendCacheSize    int           `env:"BACKEND_CACHE_SIZE" envDefault:"64"`
	StreamBuffer        int           `env:"STREAM_BUFFER" envDefault:"64"`

	ImageBaseURL string `env:"IMAGE_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ImageAPIKey  string `env:"IMAGE_API_KEY"`
	ImageModel   string `env:"IMAGE_MODEL" envDefault:"dall-e-3"`
	ImageSize    string `env:"IMAGE_SIZE" envDefault:"1024x1024"`

	SandboxURL        string        `env:"SANDBOX_URL"`
	SandboxTimeout    time.Duration `env:"SANDBOX_TIMEOUT" envDefault:"20s"`
	WebReaderTimeout  time.Duration `env:"WEB_READER_TIMEOUT" envDefault:"15s"`
	WebReaderMaxBytes int64         `env:"WEB_READER_MAX_BYTES" envDefault:"2097152"`
	WebReaderMaxChars int           `env:"WEB_READER_MAX_CHARS" envDefault:"20000"`

	// WebReaderAllowPrivate lets read_webpage reach loopback and private networks.
	WebReaderAllowPrivate bool `env:"WEB_READER_ALLOW_PRIVATE" envDefault:"false"`

	ToolDefaultTimeout time.Duration            `env:"TOOL_DEFAULT_TIMEOUT" envDefault:"120s"`
	ToolTimeouts       map[string]time.Duration `env:"TOOL_TIMEOUTS"`
	ToolMaxConcurrency int                      `env:"TOOL_MAX_CONCURRENCY" envDefault:"4"`
	MaxToolSteps       int                      `env:"MAX_TOOL_STEPS" envDefault:"5"`

	WorkerCount        int           `env:"WORKER_COUNT" envDefault:"2"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	TaskTimeout        time.Duration `env:"TASK_TIMEOUT" envDefault:"60s"`
	TitleMaxRetries    int           `env:"TITLE_MAX_RETRIES" envDefault:"2"`
	TitleRetryDelay    time.Duration `env:"TITLE_RETRY_DELAY" envDefault:"3s"`
	TitleRetryBackoff  string        `env:"TITLE_RETRY_BACKOFF" envDefault:"exponential"`
	TitleLockTTL       time.Duration `env:"TITLE_LOCK_TTL" envDefault:"30s"`

	BillingInitialCredits decimal.Decimal `env:"BILLING_INITIAL_CREDITS" envDefault:"10"`
	BillingMinCredits     decimal.Decimal `env:"BILLING_MIN_CREDITS" envDefault:"0.01"`

	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitMaxKeys  int           `env:"RATE_LIMIT_MAX_KEYS" envDefault:"10000"`

	EnableTracing     bool              `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint      string            `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTLPHeaders       map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	OTLPInsecure      bool              `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TraceSamplingRate float64           `env:"TRACE_SAMPLING_RATE" envDefault:"1.0"`
	PIILevel          string            `env:"PII_LEVEL" envDefault:"hashed"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthJWKSURL) == "" && strings.TrimSpace(c.AuthHMACSecret) == "" {
		return fmt.Errorf("AUTH_JWKS_URL or AUTH_HMAC_SECRET is required")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("DEFAULT_MODEL is required")
	}
	if c.MaxToolSteps <= 0 {
		return fmt.Errorf("MAX_TOOL_STEPS must be positive")
	}
	if c.TitleMaxRetries < 0 {
		return fmt.Errorf("TITLE_MAX_RETRIES must not be negative")
	}
	if _, err := retry.ParseBackoff(c.TitleRetryBackoff); err != nil {
		return fmt.Errorf("TITLE_RETRY_BACKOFF: %w", err)
	}
	if c.BillingInitialCredits.IsNegative() || c.BillingMinCredits.IsNegative() {
		return fmt.Errorf("billing credits must not be negative")
	}
	if c.RateLimitEnabled && (c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("TRACE_SAMPLING_RATE must be between 0 and 1")
	}
	switch c.PIILevel {
	case "none", "hashed", "full":
	default:
		return fmt.Errorf("PII_LEVEL must be none, hashed or full, got %q", c.PIILevel)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// TitleRetryPolicy is the retry policy of background title tasks.
func (c *Config) TitleRetryPolicy() retry.Policy {
	backoff, _ := retry.ParseBackoff(c.TitleRetryBackoff)
	return retry.Policy{
		MaxRetries:      c.TitleMaxRetries,
		InitialDelay:    c.TitleRetryDelay,
		MaxDelay:        time.Minute,
		BackoffStrategy: backoff,
		JitterFactor:    0.2,
	}
}

// UsesDatabase reports whether postgres storage is configured.
func (c *Config) UsesDatabase() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}
