// Package config loads service configuration from environment variables.
// Every setting has a default except the secrets; Validate reports all
// problems at once so a bad deployment fails on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Scraper  ScraperConfig
	Auth     AuthConfig
	Broker   BrokerConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining imports (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds storage settings.
type DatabaseConfig struct {
	// Driver selects the storage backend: postgres or memory (default: postgres)
	Driver string `env:"STORAGE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema at startup (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"false"`

	// SeedAdminEmail creates an administrator in the memory driver (development only)
	SeedAdminEmail string `env:"DEV_SEED_ADMIN_EMAIL"`
}

// IngestConfig holds listing ingestion settings.
type IngestConfig struct {
	// MaxRequestBytes caps JSON create requests, images included (default: 32MiB)
	MaxRequestBytes int64 `env:"INGEST_MAX_REQUEST_BYTES" default:"32MiB"`

	// MaxCSVBytes caps an uploaded CSV document (default: 100MiB)
	MaxCSVBytes int64 `env:"INGEST_MAX_CSV_BYTES" default:"100MiB"`

	// MaxImageBytes is the decoded size ceiling per image (default: 5MiB)
	MaxImageBytes int64 `env:"INGEST_MAX_IMAGE_BYTES" default:"5MiB"`

	// MaxConcurrent is the number of imports and scrape jobs that may run at once (default: 4)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// ImportTimeout bounds one CSV import (default: 10m)
	ImportTimeout time.Duration `env:"INGEST_IMPORT_TIMEOUT" default:"10m"`

	// RowPolicy is abort or skip (default: abort)
	RowPolicy string `env:"INGEST_CSV_ROW_POLICY" default:"abort"`

	// DefaultCity names the city of CSV rows without one (default: Unknown)
	DefaultCity string `env:"INGEST_DEFAULT_CITY" default:"Unknown"`

	// FoldCityNames title-cases city names before lookup (default: false)
	FoldCityNames bool `env:"INGEST_FOLD_CITY_NAMES" default:"false"`
}

// ScraperConfig holds scrape job settings.
type ScraperConfig struct {
	Enabled        bool          `env:"SCRAPER_ENABLED" default:"true"`
	UserAgent      string        `env:"SCRAPER_USER_AGENT" default:"listings-scraper/1.0"`
	RequestTimeout time.Duration `env:"SCRAPER_REQUEST_TIMEOUT" default:"20s"`
	Parallelism    int           `env:"SCRAPER_PARALLELISM" default:"1"`
	Delay          time.Duration `env:"SCRAPER_DELAY" default:"2s"`

	// AllowedDomains restricts fetching; empty allows any host
	AllowedDomains []string `env:"SCRAPER_ALLOWED_DOMAINS"`

	// JobTimeout bounds one scrape job (default: 15m)
	JobTimeout time.Duration `env:"SCRAPER_JOB_TIMEOUT" default:"15m"`

	// JobRetention keeps finished jobs visible for status queries (default: 24h)
	JobRetention time.Duration `env:"SCRAPER_JOB_RETENTION" default:"24h"`

	// JanitorInterval is how often finished jobs are purged (default: 10m)
	JanitorInterval time.Duration `env:"SCRAPER_JANITOR_INTERVAL" default:"10m"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	// JWTSecret is the HMAC key that signs bearer tokens (required)
	JWTSecret string `env:"AUTH_JWT_SECRET" required:"true"`

	// Issuer, when set, must match the token's iss claim
	Issuer string `env:"AUTH_JWT_ISSUER"`
}

// BrokerConfig holds refresh-signal publishing settings.
// An empty URL logs refresh signals instead of publishing them.
type BrokerConfig struct {
	URL        string `env:"RABBITMQ_URL" envAlt:"AMQP_URL"`
	Exchange   string `env:"RABBITMQ_EXCHANGE" default:"listings"`
	RoutingKey string `env:"RABBITMQ_ROUTING_KEY" default:"listings.refreshed"`
}

// CacheConfig holds image cache settings. An empty address disables caching.
type CacheConfig struct {
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" default:"0"`
	ImageTTL      time.Duration `env:"CACHE_IMAGE_TTL" default:"1h"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// ImportLimit is requests per minute for import and scrape endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or tint (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
