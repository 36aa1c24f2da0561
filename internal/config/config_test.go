package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Defaults(t *testing.T) {
	m, err := NewManagerWithPaths(t.TempDir())
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Predictor.Timeout)
	assert.Equal(t, 2.0, cfg.Predictor.RateLimit)
	assert.Equal(t, uint32(5), cfg.Predictor.MaxRequests)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "sqlite", cfg.Review.Driver)
	assert.Equal(t, int64(10<<20), cfg.Ingestion.MaxUploadBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "adhd-assessment", cfg.MCP.ServerName)

	assert.NoError(t, m.Validate())
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())
}

func TestManager_ConfigFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
environment: production
server:
  port: 9090
predictor:
  base_url: http://predictor.internal:5000/api
cache:
  backend: redis
  redis_url: redis://cache:6379/1
logging:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("ADHD_ASSESS_SERVER_PORT", "7070")
	t.Setenv("ADHD_ASSESS_REVIEW_DRIVER", "postgres")
	t.Setenv("ADHD_ASSESS_REVIEW_POSTGRES_URL", "postgres://u:p@db/reviews")

	m, err := NewManagerWithPaths(dir)
	require.NoError(t, err)
	cfg := m.GetConfig()

	assert.Equal(t, 7070, cfg.Server.Port, "environment wins over file")
	assert.Equal(t, "http://predictor.internal:5000/api", cfg.Predictor.BaseURL)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Cache.RedisURL)
	assert.Equal(t, "postgres", cfg.Review.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, m.IsProduction())
	assert.NoError(t, m.Validate())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
		errMsg string
	}{
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }, "invalid server port"},
		{"missing predictor", func(c *domain.Config) { c.Predictor.BaseURL = "" }, "predictor base URL is required"},
		{"relative records url", func(c *domain.Config) { c.Records.BaseURL = "/api" }, "invalid records base URL"},
		{"zero rate", func(c *domain.Config) { c.Predictor.RateLimit = 0 }, "rate limit"},
		{"unknown cache", func(c *domain.Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"redis without url", func(c *domain.Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisURL = ""
		}, "Redis URL is required"},
		{"postgres without url", func(c *domain.Config) { c.Review.Driver = "postgres" }, "postgres_url is required"},
		{"unknown driver", func(c *domain.Config) { c.Review.Driver = "mysql" }, "invalid review driver"},
		{"upload limit", func(c *domain.Config) { c.Ingestion.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"log level", func(c *domain.Config) { c.Logging.Level = "verbose" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManagerWithPaths(t.TempDir())
			require.NoError(t, err)
			tt.mutate(m.GetConfig())

			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestManager_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := NewManagerWithPaths(dir)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithField("stage", "intake").Warn("advance blocked")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "advance blocked", line["message"])
	assert.Equal(t, "intake", line["stage"])

	logger = NewLogger(domain.LoggingConfig{Level: "nonsense", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}
