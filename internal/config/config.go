package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"admissions-portal/portal-backend/internal/retry"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Backend  BackendConfig  `json:"backend" yaml:"backend"`
	Session  SessionConfig  `json:"session" yaml:"session"`
	Retry    retry.Policy   `json:"retry" yaml:"retry"`
	Reports  ReportsConfig  `json:"reports" yaml:"reports"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Email    EmailConfig    `json:"email" yaml:"email"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	User           string        `json:"user" yaml:"user"`
	Password       string        `json:"password" yaml:"password"`
	DBName         string        `json:"db_name" yaml:"db_name"`
	SSLMode        string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections int           `json:"max_connections" yaml:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime" yaml:"max_lifetime"`
}

// BackendConfig points at the hosted data/auth backend
type BackendConfig struct {
	URL             string        `json:"url" yaml:"url"`
	AnonKey         string        `json:"anon_key" yaml:"anon_key"`
	ServiceEmail    string        `json:"service_email" yaml:"service_email"`
	ServicePassword string        `json:"service_password" yaml:"service_password"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	RateLimit       float64       `json:"rate_limit" yaml:"rate_limit"`
	RateBurst       int           `json:"rate_burst" yaml:"rate_burst"`
}

// SessionConfig tunes refresh coordination
type SessionConfig struct {
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay"`
	// RefreshMargin refreshes pre-emptively when the session expires within it
	RefreshMargin time.Duration `json:"refresh_margin" yaml:"refresh_margin"`
	// RefreshSchedule is the cron spec for the pre-emptive check
	RefreshSchedule string `json:"refresh_schedule" yaml:"refresh_schedule"`
}

// ReportsConfig configures report execution
type ReportsConfig struct {
	// DataSource is "rest" (hosted backend) or "postgres" (direct read replica)
	DataSource        string        `json:"data_source" yaml:"data_source"`
	CacheTTL          time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	Concurrency       int           `json:"concurrency" yaml:"concurrency"`
	WidgetTimeout     time.Duration `json:"widget_timeout" yaml:"widget_timeout"`
	ScheduleReload    time.Duration `json:"schedule_reload" yaml:"schedule_reload"`
	ExecutionTimeout  time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
	DownloadURLExpiry time.Duration `json:"download_url_expiry" yaml:"download_url_expiry"`
	KeyPrefix         string        `json:"key_prefix" yaml:"key_prefix"`
}

// StorageConfig is the S3 bucket for generated files
type StorageConfig struct {
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
}

// EmailConfig configures SES delivery
type EmailConfig struct {
	Region      string `json:"region" yaml:"region"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "admissions_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
		},
		Backend: BackendConfig{
			Timeout:   30 * time.Second,
			RateLimit: 20,
			RateBurst: 10,
		},
		Session: SessionConfig{
			SettleDelay:     100 * time.Millisecond,
			RefreshMargin:   2 * time.Minute,
			RefreshSchedule: "@every 30s",
		},
		Retry: retry.DefaultPolicy(),
		Reports: ReportsConfig{
			DataSource:        "rest",
			CacheTTL:          5 * time.Minute,
			Concurrency:       4,
			WidgetTimeout:     20 * time.Second,
			ScheduleReload:    time.Minute,
			ExecutionTimeout:  10 * time.Minute,
			DownloadURLExpiry: 24 * time.Hour,
			KeyPrefix:         "reports",
		},
		Storage: StorageConfig{Region: "us-east-1"},
		Email:   EmailConfig{Region: "us-east-1", FromName: "Admissions Reports"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig loads configuration: defaults, then the YAML (or JSON) file if
// present, then .env, then environment variables. Durations in the file are
// strings such as "250ms" or "1m30s".
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("SERVER_HOST", &config.Server.Host)
	integer("SERVER_PORT", &config.Server.Port)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		config.Server.AllowedOrigins = strings.Split(v, ",")
	}

	str("DATABASE_HOST", &config.Database.Host)
	integer("DATABASE_PORT", &config.Database.Port)
	str("DATABASE_USER", &config.Database.User)
	str("DATABASE_PASSWORD", &config.Database.Password)
	str("DATABASE_DBNAME", &config.Database.DBName)
	str("DATABASE_SSLMODE", &config.Database.SSLMode)

	str("BACKEND_URL", &config.Backend.URL)
	str("BACKEND_ANON_KEY", &config.Backend.AnonKey)
	str("BACKEND_SERVICE_EMAIL", &config.Backend.ServiceEmail)
	str("BACKEND_SERVICE_PASSWORD", &config.Backend.ServicePassword)

	duration("SESSION_SETTLE_DELAY", &config.Session.SettleDelay)
	duration("SESSION_REFRESH_MARGIN", &config.Session.RefreshMargin)

	integer("RETRY_MAX_RETRIES", &config.Retry.MaxRetries)
	duration("RETRY_BASE_DELAY", &config.Retry.BaseDelay)
	boolean("RETRY_EXPONENTIAL", &config.Retry.Exponential)

	str("REPORTS_DATA_SOURCE", &config.Reports.DataSource)
	duration("REPORTS_CACHE_TTL", &config.Reports.CacheTTL)

	str("AWS_REGION", &config.Storage.Region)
	str("REPORTS_BUCKET", &config.Storage.Bucket)
	str("S3_ENDPOINT", &config.Storage.Endpoint)
	boolean("S3_USE_PATH_STYLE", &config.Storage.UsePathStyle)
	str("AWS_REGION", &config.Email.Region)
	str("EMAIL_FROM_ADDRESS", &config.Email.FromAddress)

	str("LOG_LEVEL", &config.Logging.Level)
	boolean("LOG_DEVELOPMENT", &config.Logging.Development)

	return errors.Join(errs...)
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Reports.DataSource {
	case "rest":
		if c.Backend.URL == "" {
			errs = append(errs, errors.New("backend.url is required for the rest data source"))
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Errorf("reports.data_source %q must be rest or postgres", c.Reports.DataSource))
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds the process logger: JSON in production, console with
// colour in development
func NewLogger(c LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = level
	return zc.Build()
}
