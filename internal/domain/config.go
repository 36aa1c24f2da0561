package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Predictor    PredictorConfig    `mapstructure:"predictor"`
	Records      RecordsConfig      `mapstructure:"records"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Notification NotificationConfig `mapstructure:"notification"`
	Review       ReviewConfig       `mapstructure:"review"`
	Ingestion    IngestionConfig    `mapstructure:"ingestion"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	MCP          MCPConfig          `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// PredictorConfig configures the classification service client
type PredictorConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	MaxRequests uint32        `mapstructure:"max_requests"`
}

// RecordsConfig configures the assessment history client
type RecordsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"` // "memory", "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
	MaxItems int           `mapstructure:"max_items"`
	PoolSize int           `mapstructure:"pool_size"`
}

// NotificationConfig configures the email delivery service
type NotificationConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	ServiceID  string        `mapstructure:"service_id"`
	TemplateID string        `mapstructure:"template_id"`
	PublicKey  string        `mapstructure:"public_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ReviewConfig configures the clinician review store
type ReviewConfig struct {
	Driver         string `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath     string `mapstructure:"sqlite_path"`
	PostgresURL    string `mapstructure:"postgres_url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// IngestionConfig bounds EEG uploads
type IngestionConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
