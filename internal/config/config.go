package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Auth        AuthConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	SMTP        SMTPConfig
	Jobs        JobsConfig
	Maintenance MaintenanceConfig
	Archive     ArchiveConfig
	Tracing     TracingConfig
	Websocket   WebsocketConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration // Per-request handler timeout
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	// Sampling configuration for high-traffic production environments
	SamplingEnabled   bool    // Enable log sampling (default: false for dev, true for prod)
	SamplingThreshold int     // First N identical logs per second (default: 100)
	SamplingRate      float64 // Sample rate after threshold, 0.0-1.0 (default: 0.1 = 10%)
	ErrorSamplingRate float64 // Sample rate for errors, 0.0-1.0 (default: 1.0 = 100%)

	// HTTP logging configuration
	SkipHealthLogs     bool // Skip logging health check endpoints (default: true in prod)
	SlowRequestSeconds int  // Log requests slower than this as warnings (default: 5)
}

// AuthConfig holds token validation configuration. Authentication itself is
// an identity-provider concern; this service only verifies the signature.
type AuthConfig struct {
	JWTSecret           string
	JWTIssuer           string
	AccessTokenDuration time.Duration // Used by the admin CLI when minting dev tokens
	SocketTicketTTL     time.Duration // Lifetime of single-use websocket tickets
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration

	// InvitePreviewPerMin caps unauthenticated invitation-token lookups per
	// client IP, counted in Redis so the cap holds across replicas.
	InvitePreviewPerMin int
}

// SMTPConfig holds SMTP configuration for sending emails.
type SMTPConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	From       string
	FromName   string
	TLS        bool
	SkipVerify bool
	Enabled    bool
	BaseURL    string // Frontend base URL for email links
	Timeout    time.Duration
}

// IsConfigured returns true if SMTP is properly configured.
func (c *SMTPConfig) IsConfigured() bool {
	return c.Enabled && c.Host != "" && c.Port > 0 && c.From != ""
}

// JobsConfig holds background job processing configuration.
type JobsConfig struct {
	// Concurrency is the number of concurrent asynq workers.
	Concurrency int
	// Queues maps queue names to priority weights.
	QueueDefault     int
	QueueEmail       int
	QueueMaintenance int
}

// MaintenanceConfig holds scheduled maintenance configuration.
type MaintenanceConfig struct {
	Enabled bool

	// InvitationPruneSchedule is the cron spec for deleting expired pending
	// invitations.
	InvitationPruneSchedule string

	// InvitationGraceDays keeps expired invitations around for this many
	// days before the prune job deletes them, so recipients still get a
	// meaningful "this invitation expired" page for a while.
	InvitationGraceDays int

	// AuditArchiveSchedule is the cron spec for the audit retention job.
	AuditArchiveSchedule string

	// AuditRetentionDays is how long audit rows stay in Postgres before the
	// retention job exports and deletes them. Zero disables archiving.
	AuditRetentionDays int

	// AuditArchiveBatchSize bounds one archive export.
	AuditArchiveBatchSize int
}

// ArchiveConfig holds S3 archive storage configuration for exported audit
// batches.
type ArchiveConfig struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string

	// Endpoint overrides the S3 endpoint for MinIO or similar.
	Endpoint string

	// AuthMethod selects "keys" (static credentials) or "sts_role".
	AuthMethod      string
	AccessKeyID     string
	SecretAccessKey string
	STSRoleARN      string
	STSExternalID   string
}

// IsConfigured returns true if the archive target is usable.
func (c *ArchiveConfig) IsConfigured() bool {
	return c.Enabled && c.Bucket != ""
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string // OTLP HTTP endpoint, host:port
	Insecure    bool
	SampleRatio float64
	ServiceName string
}

// WebsocketConfig holds activity feed WebSocket configuration.
type WebsocketConfig struct {
	Enabled         bool
	ReadLimit       int64
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	SendBufferSize  int
	AllowedOrigins  []string
	MaxSocketsPerIP int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "taskforge"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20), // 1MB default
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "taskforge"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "taskforge"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
		},
		Log: LogConfig{
			Level:              getEnv("LOG_LEVEL", "info"),
			Format:             getEnv("LOG_FORMAT", "json"),
			SamplingEnabled:    getEnvBool("LOG_SAMPLING_ENABLED", false),
			SamplingThreshold:  getEnvInt("LOG_SAMPLING_THRESHOLD", 100),
			SamplingRate:       getEnvFloat("LOG_SAMPLING_RATE", 0.1),
			ErrorSamplingRate:  getEnvFloat("LOG_ERROR_SAMPLING_RATE", 1.0),
			SkipHealthLogs:     getEnvBool("LOG_SKIP_HEALTH", true),
			SlowRequestSeconds: getEnvInt("LOG_SLOW_REQUEST_SECONDS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:           getEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:           getEnv("AUTH_JWT_ISSUER", "taskforge"),
			AccessTokenDuration: getEnvDuration("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute),
			SocketTicketTTL:     getEnvDuration("AUTH_SOCKET_TICKET_TTL", 30*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 86400),
		},
		RateLimit: RateLimitConfig{
			Enabled:             getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:      getEnvFloat("RATE_LIMIT_RPS", 100),
			Burst:               getEnvInt("RATE_LIMIT_BURST", 200),
			CleanupInterval:     getEnvDuration("RATE_LIMIT_CLEANUP", 1*time.Minute),
			InvitePreviewPerMin: getEnvInt("RATE_LIMIT_INVITE_PREVIEW_PER_MIN", 20),
		},
		SMTP: SMTPConfig{
			Enabled:    getEnvBool("SMTP_ENABLED", false),
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvInt("SMTP_PORT", 587),
			User:       getEnv("SMTP_USER", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", ""),
			FromName:   getEnv("SMTP_FROM_NAME", "TaskForge"),
			TLS:        getEnvBool("SMTP_TLS", true),
			SkipVerify: getEnvBool("SMTP_SKIP_VERIFY", false),
			BaseURL:    getEnv("SMTP_BASE_URL", "http://localhost:3000"),
			Timeout:    getEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		Jobs: JobsConfig{
			Concurrency:      getEnvInt("JOBS_CONCURRENCY", 10),
			QueueDefault:     getEnvInt("JOBS_QUEUE_DEFAULT", 5),
			QueueEmail:       getEnvInt("JOBS_QUEUE_EMAIL", 3),
			QueueMaintenance: getEnvInt("JOBS_QUEUE_MAINTENANCE", 1),
		},
		Maintenance: MaintenanceConfig{
			Enabled:                 getEnvBool("MAINTENANCE_ENABLED", true),
			InvitationPruneSchedule: getEnv("MAINTENANCE_INVITATION_PRUNE_SCHEDULE", "0 3 * * *"),
			InvitationGraceDays:     getEnvInt("MAINTENANCE_INVITATION_GRACE_DAYS", 14),
			AuditArchiveSchedule:    getEnv("MAINTENANCE_AUDIT_ARCHIVE_SCHEDULE", "30 3 * * *"),
			AuditRetentionDays:      getEnvInt("MAINTENANCE_AUDIT_RETENTION_DAYS", 365),
			AuditArchiveBatchSize:   getEnvInt("MAINTENANCE_AUDIT_ARCHIVE_BATCH_SIZE", 10000),
		},
		Archive: ArchiveConfig{
			Enabled:         getEnvBool("ARCHIVE_ENABLED", false),
			Bucket:          getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:          getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Prefix:          getEnv("ARCHIVE_S3_PREFIX", "audit"),
			Endpoint:        getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AuthMethod:      getEnv("ARCHIVE_S3_AUTH_METHOD", "keys"),
			AccessKeyID:     getEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
			STSRoleARN:      getEnv("ARCHIVE_S3_STS_ROLE_ARN", ""),
			STSExternalID:   getEnv("ARCHIVE_S3_STS_EXTERNAL_ID", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvBool("TRACING_OTLP_INSECURE", true),
			SampleRatio: getEnvFloat("TRACING_SAMPLE_RATIO", 1.0),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "taskforge-api"),
		},
		Websocket: WebsocketConfig{
			Enabled:         getEnvBool("WEBSOCKET_ENABLED", true),
			ReadLimit:       getEnvInt64("WEBSOCKET_READ_LIMIT", 4096),
			WriteTimeout:    getEnvDuration("WEBSOCKET_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:    getEnvDuration("WEBSOCKET_PING_INTERVAL", 30*time.Second),
			SendBufferSize:  getEnvInt("WEBSOCKET_SEND_BUFFER_SIZE", 64),
			AllowedOrigins:  getEnvSlice("WEBSOCKET_ALLOWED_ORIGINS", []string{}),
			MaxSocketsPerIP: getEnvInt("WEBSOCKET_MAX_SOCKETS_PER_IP", 16),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

// validateBasic validates basic configuration regardless of environment.
func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return nil
}

// validateAuth validates token configuration.
func (c *Config) validateAuth() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters")
	}
	if c.Auth.SocketTicketTTL < time.Second || c.Auth.SocketTicketTTL > 5*time.Minute {
		return fmt.Errorf("AUTH_SOCKET_TICKET_TTL must be between 1s and 5m, got %v", c.Auth.SocketTicketTTL)
	}
	return nil
}

// validateLog validates logging configuration.
func (c *Config) validateLog() error {
	validLevels := map[string]bool{
		"debug": true, "DEBUG": true,
		"info": true, "INFO": true,
		"warn": true, "WARN": true,
		"error": true, "ERROR": true,
	}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{
		"json": true, "JSON": true,
		"text": true, "TEXT": true,
		"": true, // Empty is allowed (defaults to json)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}

	if c.Log.SamplingRate < 0.0 || c.Log.SamplingRate > 1.0 {
		return fmt.Errorf("LOG_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.SamplingRate)
	}
	if c.Log.ErrorSamplingRate < 0.0 || c.Log.ErrorSamplingRate > 1.0 {
		return fmt.Errorf("LOG_ERROR_SAMPLING_RATE must be between 0.0 and 1.0, got %f", c.Log.ErrorSamplingRate)
	}
	if c.Log.SamplingThreshold < 0 {
		return fmt.Errorf("LOG_SAMPLING_THRESHOLD must be non-negative, got %d", c.Log.SamplingThreshold)
	}
	if c.Log.SlowRequestSeconds < 0 {
		return fmt.Errorf("LOG_SLOW_REQUEST_SECONDS must be non-negative, got %d", c.Log.SlowRequestSeconds)
	}

	return nil
}

// validateArchive validates the archive target.
func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.Bucket == "" {
		return fmt.Errorf("ARCHIVE_S3_BUCKET is required when archiving is enabled")
	}
	switch c.Archive.AuthMethod {
	case "keys":
		if c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "" {
			return fmt.Errorf("ARCHIVE_S3_ACCESS_KEY_ID and ARCHIVE_S3_SECRET_ACCESS_KEY are required with auth method 'keys'")
		}
	case "sts_role":
		if c.Archive.STSRoleARN == "" {
			return fmt.Errorf("ARCHIVE_S3_STS_ROLE_ARN is required with auth method 'sts_role'")
		}
	default:
		return fmt.Errorf("ARCHIVE_S3_AUTH_METHOD must be 'keys' or 'sts_role', got '%s'", c.Archive.AuthMethod)
	}
	return nil
}

// validateProduction validates production-specific configuration.
func (c *Config) validateProduction() error {
	if err := c.validateProductionSecurity(); err != nil {
		return err
	}
	if err := c.validateProductionRedis(); err != nil {
		return err
	}
	if len(c.Auth.JWTSecret) < 64 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 64 characters in production")
	}
	return nil
}

// validateProductionSecurity validates security settings for production.
func (c *Config) validateProductionSecurity() error {
	if slices.Contains(c.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("CORS wildcard origin not allowed in production")
	}
	if c.Database.SSLMode == "disable" {
		return fmt.Errorf("database SSL must be enabled in production (use 'require' or 'verify-full')")
	}
	if !c.RateLimit.Enabled {
		return fmt.Errorf("rate limiting must be enabled in production")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if c.Log.Level == "debug" {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	if c.Websocket.Enabled && len(c.Websocket.AllowedOrigins) == 0 {
		return fmt.Errorf("WEBSOCKET_ALLOWED_ORIGINS must be set in production")
	}
	return nil
}

// validateProductionRedis validates Redis configuration for production.
func (c *Config) validateProductionRedis() error {
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if !c.Redis.TLSEnabled {
		return fmt.Errorf("redis TLS must be enabled in production")
	}
	if c.Redis.TLSSkipVerify {
		return fmt.Errorf("redis TLS skip verify must be false in production")
	}
	if c.Redis.PoolSize < 10 || c.Redis.PoolSize > 500 {
		return fmt.Errorf("redis pool size must be between 10 and 500 in production, got %d", c.Redis.PoolSize)
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if the application is in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(v)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
