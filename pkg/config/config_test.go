package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 5
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 50
	cfg.RateLimiting.WebSocket.Burst = 100
	cfg.RateLimiting.WebSocket.MaxConcurrent = 10
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 65536
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, validBaseConfig().Validate())
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.RateLimiting.HTTP.Burst = 0
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 0
	cfg.RateLimiting.WebSocket.Burst = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http rps must be > 0", func(c *Config) { c.RateLimiting.HTTP.RequestsPerSecond = 0 }},
		{"http burst must be > 0", func(c *Config) { c.RateLimiting.HTTP.Burst = 0 }},
		{"http max concurrent must be >= 0", func(c *Config) { c.RateLimiting.HTTP.MaxConcurrent = -1 }},
		{"ws messages per second must be > 0", func(c *Config) { c.RateLimiting.WebSocket.MessagesPerSecond = 0 }},
		{"ws burst must be > 0", func(c *Config) { c.RateLimiting.WebSocket.Burst = 0 }},
		{"ws max message size must be >= 0", func(c *Config) { c.RateLimiting.WebSocket.MaxMessageSizeBytes = -1 }},
		{"pong timeout must exceed ping interval", func(c *Config) { c.Signal.PongTimeout = c.Signal.PingInterval }},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"sqlite needs a path", func(c *Config) {
			c.Storage.Driver = DriverSQLite
			c.Storage.SQLitePath = ""
		}},
		{"redis needs an address", func(c *Config) {
			c.Storage.Driver = DriverRedis
			c.Redis.Address = ""
		}},
		{"token endpoint required", func(c *Config) { c.Video.TokenEndpoint = "" }},
		{"token endpoint scheme", func(c *Config) { c.Video.TokenEndpoint = "ftp://tokens.local/create-token" }},
		{"token timeout must be > 0", func(c *Config) { c.Video.TokenTimeout = 0 }},
		{"retry attempts must be >= 0", func(c *Config) { c.Video.RetryAttempts = -1 }},
		{"append timeout must be > 0", func(c *Config) { c.Chat.AppendTimeout = 0 }},
		{"bcrypt cost in range", func(c *Config) { c.Auth.BcryptCost = 2 }},
		{"jwt secret required", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"backup dir required", func(c *Config) { c.Backup.Dir = "" }},
		{"backup retain must be >= 0", func(c *Config) { c.Backup.Retain = -1 }},
		{"enabled backup needs an interval", func(c *Config) {
			c.Backup.Enabled = true
			c.Backup.Interval = 0
		}},
		{"tracing sample rate in range", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 10*time.Second, cfg.Video.TokenTimeout)
	assert.False(t, cfg.Chat.RequireHeldRoles)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  address: ":9999"
storage:
  driver: sqlite
  sqlite_path: /tmp/chat.db
video:
  token_endpoint: http://tokens.local/create-token
  token_timeout: 3s
chat:
  require_held_roles: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("CHATGATE_JWT_SECRET", "from-env")
	t.Setenv("CHATGATE_TOKEN_TIMEOUT", "7s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "http://tokens.local/create-token", cfg.Video.TokenEndpoint)
	assert.Equal(t, 7*time.Second, cfg.Video.TokenTimeout)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Chat.RequireHeldRoles)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	t.Setenv("CHATGATE_TOKEN_TIMEOUT", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
