package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ADHD_ASSESS_SERVER_PORT
const EnvPrefix = "ADHD_ASSESS"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	paths  []string
	config *domain.Config
}

// NewManager creates a new configuration manager searching the default paths
func NewManager() (*Manager, error) {
	return NewManagerWithPaths(".", "./config", "/etc/adhd-assessment/")
}

// NewManagerWithPaths creates a configuration manager searching only the given paths
func NewManagerWithPaths(paths ...string) (*Manager, error) {
	m := &Manager{paths: paths}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults
func (m *Manager) loadConfig() error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range m.paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Predictor defaults
	v.SetDefault("predictor.base_url", "http://localhost:5000/api")
	v.SetDefault("predictor.timeout", "30s")
	v.SetDefault("predictor.rate_limit", 2.0)
	v.SetDefault("predictor.max_requests", 5)

	// Record service defaults
	v.SetDefault("records.base_url", "http://localhost:5000/api")
	v.SetDefault("records.timeout", "10s")

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.max_items", 256)
	v.SetDefault("cache.pool_size", 10)

	// Notification defaults
	v.SetDefault("notification.endpoint", "https://api.emailjs.com/api/v1.0/email/send")
	v.SetDefault("notification.service_id", "")
	v.SetDefault("notification.template_id", "")
	v.SetDefault("notification.public_key", "")
	v.SetDefault("notification.timeout", "15s")

	// Review store defaults
	v.SetDefault("review.driver", "sqlite")
	v.SetDefault("review.sqlite_path", "./data/reviews.db")
	v.SetDefault("review.postgres_url", "")
	v.SetDefault("review.migrations_path", "./internal/database/migrations")

	// Ingestion defaults
	v.SetDefault("ingestion.max_upload_bytes", 10<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// MCP defaults
	v.SetDefault("mcp.server_name", "adhd-assessment")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if err := validateBaseURL("predictor", config.Predictor.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("records", config.Records.BaseURL); err != nil {
		return err
	}
	if config.Predictor.RateLimit <= 0 {
		return fmt.Errorf("predictor rate limit must be positive")
	}

	switch config.Cache.Backend {
	case "memory":
		if config.Cache.MaxItems <= 0 {
			return fmt.Errorf("cache max_items must be positive")
		}
	case "redis":
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s", config.Cache.Backend)
	}

	switch config.Review.Driver {
	case "sqlite":
		if config.Review.SQLitePath == "" {
			return fmt.Errorf("review sqlite_path is required")
		}
	case "postgres":
		if config.Review.PostgresURL == "" {
			return fmt.Errorf("review postgres_url is required")
		}
	default:
		return fmt.Errorf("invalid review driver: %s", config.Review.Driver)
	}

	if config.Ingestion.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingestion max_upload_bytes must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

func validateBaseURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s base URL is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s base URL: %s", name, raw)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
