package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for audit logs. When nil, audit uses main DB.
	Session       SessionConfig
	Token         TokenConfig
	Authorization AuthorizationConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// SessionConfig holds cookie session configuration
type SessionConfig struct {
	Name   string
	Key    string
	Domain string
	Secure bool
}

// TokenConfig holds bearer token validation settings. Token auth is
// disabled when JWKSURL is empty.
type TokenConfig struct {
	Issuer      string
	Audience    string
	JWKSURL     string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// Enabled reports whether bearer tokens are accepted
func (c TokenConfig) Enabled() bool {
	return c.JWKSURL != ""
}

// AuthorizationConfig holds policy and role refresh settings
type AuthorizationConfig struct {
	PolicyFile            string
	RefreshRoles          bool
	RoleCacheSize         int
	RoleCacheTTL          time.Duration
	RoleCacheCleanupEvery time.Duration
}

// AuditConfig holds settings for the asynchronous audit writer
type AuditConfig struct {
	Enabled         bool
	BufferSize      int
	Workers         int
	RecordGranted   bool
	ShutdownTimeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Session: SessionConfig{
			Name:   getEnv("SESSION_NAME", "refdata-session"),
			Key:    getEnv("SESSION_KEY", ""),
			Domain: getEnv("SESSION_DOMAIN", ""),
			Secure: getEnvAsBool("SESSION_SECURE", false),
		},
		Token: TokenConfig{
			Issuer:      getEnv("TOKEN_ISSUER", ""),
			Audience:    getEnv("TOKEN_AUDIENCE", ""),
			JWKSURL:     getEnv("TOKEN_JWKS_URL", ""),
			CacheTTL:    getEnvAsDuration("TOKEN_JWKS_CACHE_TTL", time.Hour),
			HTTPTimeout: getEnvAsDuration("TOKEN_JWKS_TIMEOUT", 10*time.Second),
		},
		Authorization: AuthorizationConfig{
			PolicyFile:            getEnv("AUTHZ_POLICY_FILE", ""),
			RefreshRoles:          getEnvAsBool("AUTHZ_REFRESH_ROLES", true),
			RoleCacheSize:         getEnvAsInt("AUTHZ_ROLE_CACHE_SIZE", 1000),
			RoleCacheTTL:          getEnvAsDuration("AUTHZ_ROLE_CACHE_TTL", 30*time.Second),
			RoleCacheCleanupEvery: getEnvAsDuration("AUTHZ_ROLE_CACHE_CLEANUP", time.Minute),
		},
		Audit: AuditConfig{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", true),
			BufferSize:      getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			Workers:         getEnvAsInt("AUDIT_WORKERS", 4),
			RecordGranted:   getEnvAsBool("AUDIT_RECORD_GRANTED", false),
			ShutdownTimeout: getEnvAsDuration("AUDIT_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Session.Key == "" {
		return fmt.Errorf("session key is required: set SESSION_KEY")
	}
	if c.IsProduction() {
		if len(c.Session.Key) < 32 {
			return fmt.Errorf("session key must be at least 32 characters in production")
		}
		if !c.Session.Secure {
			return fmt.Errorf("secure session cookies are required in production")
		}
		if c.Token.Enabled() && (c.Token.Issuer == "" || c.Token.Audience == "") {
			return fmt.Errorf("token issuer and audience are required in production")
		}
	}

	if c.Authorization.RefreshRoles && c.Authorization.RoleCacheSize <= 0 {
		return fmt.Errorf("role cache size must be positive when role refresh is enabled")
	}

	if c.Audit.Enabled {
		if c.Audit.Workers <= 0 {
			return fmt.Errorf("audit workers must be positive")
		}
		if c.Audit.BufferSize <= 0 {
			return fmt.Errorf("audit buffer size must be positive")
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(c.Observability.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "portal"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "refdata"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig returns nil when DATABASE_URL_AUDIT is not set
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
