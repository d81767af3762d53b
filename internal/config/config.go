// Package config provides configuration management for the Dreamina token
// manager. It loads configuration from environment variables with sensible
// defaults and validates it so the service starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file path (default: stdout)
//   - TLS_CERT, TLS_KEY: Optional TLS certificate and key file paths
//
// Upstream Settings:
//   - UPSTREAM_BASE_URL: Dreamina API base address (can also be set at runtime)
//   - DREAMINA_LOGIN_URL: Identity endpoint for email/password login
//   - PROXY_TIMEOUT: Per-request upstream timeout (default: 2m)
//
// Session Refresh:
//   - REFRESH_INTERVAL: Background refresh scan interval (default: 6h)
//   - REFRESH_THRESHOLD: Refresh sessions expiring within this window (default: 24h)
//   - LOGIN_DELAY: Fixed delay between serial login attempts (default: 2s)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./dreamina_accounts.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL settings
//
// Notifications:
//   - REDIS_ADDRESS: Redis server address; empty disables job notifications
//   - REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE: Redis connection settings
//
// Security:
//   - ADMIN_KEY: Bearer key gating account management (required, min 16 chars)
//   - JWT_SECRET: Optional HMAC secret; signed admin JWTs are also accepted
//     (minimum 32 characters when provided)
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the token manager. All fields
// correspond to environment variables that can be set to override defaults.
//
// The configuration is loaded with Load() and should be validated with
// Validate() before use.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)
	TLSCert  string // Optional TLS certificate file path
	TLSKey   string // Optional TLS private key file path

	// Upstream settings
	UpstreamBaseURL  string        // Dreamina API base address
	DreaminaLoginURL string        // Identity endpoint for credential login
	ProxyTimeout     time.Duration // Per-request upstream timeout

	// Session refresh settings
	RefreshInterval  time.Duration // Background scan interval
	RefreshThreshold time.Duration // Refresh sessions expiring within this window
	LoginDelay       time.Duration // Delay between serial login attempts

	// Database configuration
	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string // SQLite database file path
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode

	// Redis configuration for job notifications
	RedisAddress  string // Redis server address; empty disables notifications
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// Security configuration
	AdminKey  string // Bearer key for account management endpoints (required)
	JWTSecret string // Optional HMAC secret for signed admin JWTs
}

// Load creates a new Config instance with values loaded from environment
// variables. It does not validate - call Validate() on the returned Config
// before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		TLSCert:  getEnv("TLS_CERT", ""),
		TLSKey:   getEnv("TLS_KEY", ""),

		UpstreamBaseURL:  getEnv("UPSTREAM_BASE_URL", ""),
		DreaminaLoginURL: getEnv("DREAMINA_LOGIN_URL", "https://dreamina.capcut.com/passport/web/email/login"),
		ProxyTimeout:     getDurationEnv("PROXY_TIMEOUT", 2*time.Minute),

		RefreshInterval:  getDurationEnv("REFRESH_INTERVAL", 6*time.Hour),
		RefreshThreshold: getDurationEnv("REFRESH_THRESHOLD", 24*time.Hour),
		LoginDelay:       getDurationEnv("LOGIN_DELAY", 2*time.Second),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./dreamina_accounts.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "dreamina_token_manager"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		AdminKey:  getEnv("ADMIN_KEY", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),
	}
}

// getEnv retrieves an environment variable value or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable or returns a
// default value when unset or unparsable
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all required
// fields are present and all values are valid. The application should call
// this after Load() and before starting.
func (c *Config) Validate() error {
	if c.AdminKey == "" {
		return fmt.Errorf("ADMIN_KEY environment variable is required")
	}

	if len(c.AdminKey) < 16 {
		return fmt.Errorf("ADMIN_KEY must be at least 16 characters long")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long when provided")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must be set together")
	}

	if c.DreaminaLoginURL == "" {
		return fmt.Errorf("DREAMINA_LOGIN_URL is required")
	}
	if _, err := url.ParseRequestURI(c.DreaminaLoginURL); err != nil {
		return fmt.Errorf("DREAMINA_LOGIN_URL must be a valid URL")
	}

	// Upstream base may legitimately be empty at startup; it is configurable
	// at runtime through the management API.
	if c.UpstreamBaseURL != "" {
		if _, err := url.ParseRequestURI(c.UpstreamBaseURL); err != nil {
			return fmt.Errorf("UPSTREAM_BASE_URL must be a valid URL")
		}
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.RefreshThreshold <= 0 {
		return fmt.Errorf("REFRESH_THRESHOLD must be positive")
	}
	if c.LoginDelay < 0 {
		return fmt.Errorf("LOGIN_DELAY must not be negative")
	}
	if c.ProxyTimeout <= 0 {
		return fmt.Errorf("PROXY_TIMEOUT must be positive")
	}

	switch c.DatabaseType {
	case "sqlite", "postgres", "postgresql":
		// Valid database types
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	return nil
}
