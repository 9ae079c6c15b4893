package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_URL", "https://portal.example.co")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.True(t, cfg.Retry.Exponential)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.SettleDelay)
	assert.Equal(t, "rest", cfg.Reports.DataSource)
	assert.Equal(t, "https://portal.example.co", cfg.Backend.URL)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, "config.yaml", `
server:
  port: 9000
backend:
  url: https://file.example.co
retry:
  max_retries: 5
  base_delay: 250ms
  exponential: false
reports:
  data_source: postgres
`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("RETRY_BASE_DELAY", "2s")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://file.example.co", cfg.Backend.URL)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.False(t, cfg.Retry.Exponential)
	assert.Equal(t, "postgres", cfg.Reports.DataSource)
	// untouched sections keep their defaults
	assert.Equal(t, "reports", cfg.Reports.KeyPrefix)
}

func TestLoadConfig_StringDurations(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_URL", "https://portal.example.co")

	t.Run("json file", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "config.json",
			`{"retry":{"max_retries":3,"base_delay":"1s","exponential":true},"session":{"settle_delay":"150ms"}}`))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Retry.MaxRetries)
		assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
		assert.True(t, cfg.Retry.Exponential)
		assert.Equal(t, 150*time.Millisecond, cfg.Session.SettleDelay)
	})

	t.Run("yaml file", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "config.yaml", `
session:
  settle_delay: 250ms
  refresh_margin: 1m30s
reports:
  cache_ttl: 10m
  download_url_expiry: 48h
`))
		require.NoError(t, err)
		assert.Equal(t, 250*time.Millisecond, cfg.Session.SettleDelay)
		assert.Equal(t, 90*time.Second, cfg.Session.RefreshMargin)
		assert.Equal(t, 10*time.Minute, cfg.Reports.CacheTTL)
		assert.Equal(t, 48*time.Hour, cfg.Reports.DownloadURLExpiry)
		// unset keys keep their defaults
		assert.Equal(t, "@every 30s", cfg.Session.RefreshSchedule)
		assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	})

	t.Run("unparseable duration", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "config.yaml", "retry:\n  base_delay: soon\n"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REPORTS_DATA_SOURCE", "postgres")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Reports.DataSource)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("BACKEND_URL=https://dotenv.example.co\nLOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BACKEND_URL")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://dotenv.example.co", cfg.Backend.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("malformed file", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "config.json", `{"server":`))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("bad env duration", func(t *testing.T) {
		t.Setenv("BACKEND_URL", "https://portal.example.co")
		t.Setenv("RETRY_BASE_DELAY", "soon")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "RETRY_BASE_DELAY")
	})

	t.Run("rest source without backend url", func(t *testing.T) {
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "backend.url")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "server.port"},
		{name: "negative retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "data source", mutate: func(c *Config) { c.Reports.DataSource = "mongo" }, wantErr: "reports.data_source"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Backend.URL = "https://portal.example.co"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestHelpers(t *testing.T) {
	db := DatabaseConfig{User: "portal", Password: "secret", Host: "db", Port: 5432, DBName: "admissions", SSLMode: "require"}
	assert.Equal(t, "postgres://portal:secret@db:5432/admissions?sslmode=require", db.GetDatabaseURL())

	srv := ServerConfig{Host: "127.0.0.1", Port: 8081}
	assert.Equal(t, "127.0.0.1:8081", srv.GetServerAddr())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	dev, err := NewLogger(LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger(LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}
