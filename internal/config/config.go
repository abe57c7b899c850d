package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xeroexport/internal/logger"
	"xeroexport/internal/xero"
)

// State store backends
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

type Config struct {
	// Xero API Configuration
	XeroAccessToken       string
	XeroTenantID          string
	XeroBaseURL           string
	XeroTimeout           time.Duration
	XeroRateLimitMargin   time.Duration
	XeroMaxRateLimitWaits int

	// Execution State Configuration
	StateStore       string
	StateDir         string
	StateSQLitePath  string
	StatePostgresDSN string

	// Optional: S3-compatible object store for execution state
	StateS3Bucket    string
	StateS3Region    string
	StateS3Endpoint  string
	StateS3Prefix    string
	StateS3AccessKey string
	StateS3SecretKey string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment. A .env file, if any,
// has already been loaded into the environment by main.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("XERO_BASE_URL", "https://api.xero.com/api.xro/2.0/")
	v.SetDefault("XERO_TIMEOUT_SECONDS", 30)
	v.SetDefault("XERO_RATE_LIMIT_MARGIN_SECONDS", 2)
	v.SetDefault("XERO_MAX_RATE_LIMIT_WAITS", 0)
	v.SetDefault("STATE_STORE", StoreFile)
	v.SetDefault("STATE_DIR", ".xeroexport")
	v.SetDefault("STATE_SQLITE_PATH", "xeroexport.db")
	v.SetDefault("STATE_S3_REGION", "us-east-1")
	v.SetDefault("STATE_S3_PREFIX", "xeroexport/")
	v.SetDefault("GOOGLE_SHEET_WORKSHEET", "Xero_Proposal")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00")
	v.SetDefault("LOG_OUTPUT", "stdout")

	config := &Config{
		XeroAccessToken:       v.GetString("XERO_ACCESS_TOKEN"),
		XeroTenantID:          v.GetString("XERO_TENANT_ID"),
		XeroBaseURL:           v.GetString("XERO_BASE_URL"),
		XeroTimeout:           time.Duration(v.GetInt("XERO_TIMEOUT_SECONDS")) * time.Second,
		XeroRateLimitMargin:   time.Duration(v.GetInt("XERO_RATE_LIMIT_MARGIN_SECONDS")) * time.Second,
		XeroMaxRateLimitWaits: v.GetInt("XERO_MAX_RATE_LIMIT_WAITS"),
		StateStore:            strings.ToLower(strings.TrimSpace(v.GetString("STATE_STORE"))),
		StateDir:              v.GetString("STATE_DIR"),
		StateSQLitePath:       v.GetString("STATE_SQLITE_PATH"),
		StatePostgresDSN:      v.GetString("STATE_POSTGRES_DSN"),
		StateS3Bucket:         v.GetString("STATE_S3_BUCKET"),
		StateS3Region:         v.GetString("STATE_S3_REGION"),
		StateS3Endpoint:       v.GetString("STATE_S3_ENDPOINT"),
		StateS3Prefix:         v.GetString("STATE_S3_PREFIX"),
		StateS3AccessKey:      v.GetString("STATE_S3_ACCESS_KEY"),
		StateS3SecretKey:      v.GetString("STATE_S3_SECRET_KEY"),
		GoogleSheetURL:        v.GetString("GOOGLE_SHEET_URL"),
		GoogleSheetWorksheet:  v.GetString("GOOGLE_SHEET_WORKSHEET"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		LogTimeFormat:         v.GetString("LOG_TIME_FORMAT"),
		LogOutput:             v.GetString("LOG_OUTPUT"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.StateStore {
	case StoreFile:
		if c.StateDir == "" {
			return fmt.Errorf("STATE_DIR is required for the file state store")
		}
	case StoreSQLite:
		if c.StateSQLitePath == "" {
			return fmt.Errorf("STATE_SQLITE_PATH is required for the sqlite state store")
		}
	case StorePostgres:
		if c.StatePostgresDSN == "" {
			return fmt.Errorf("STATE_POSTGRES_DSN is required for the postgres state store")
		}
	case StoreS3:
		if c.StateS3Bucket == "" {
			return fmt.Errorf("STATE_S3_BUCKET is required for the s3 state store")
		}
	default:
		return fmt.Errorf("STATE_STORE must be one of file, sqlite, postgres, s3 (got %q)", c.StateStore)
	}
	if c.XeroTimeout <= 0 {
		return fmt.Errorf("XERO_TIMEOUT_SECONDS must be positive")
	}
	if c.XeroRateLimitMargin < 0 {
		return fmt.Errorf("XERO_RATE_LIMIT_MARGIN_SECONDS must not be negative")
	}
	if c.XeroMaxRateLimitWaits < 0 {
		return fmt.Errorf("XERO_MAX_RATE_LIMIT_WAITS must not be negative")
	}
	return nil
}

// ValidateXero checks the settings needed to write to the ledger
func (c *Config) ValidateXero() error {
	var errs []error
	if c.XeroAccessToken == "" {
		errs = append(errs, errors.New("XERO_ACCESS_TOKEN is required"))
	}
	if c.XeroTenantID == "" {
		errs = append(errs, errors.New("XERO_TENANT_ID is required"))
	}
	return errors.Join(errs...)
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// XeroConfig returns the gateway configuration
func (c *Config) XeroConfig() xero.Config {
	return xero.Config{
		BaseURL:           c.XeroBaseURL,
		AccessToken:       c.XeroAccessToken,
		TenantID:          c.XeroTenantID,
		Timeout:           c.XeroTimeout,
		RateLimitMargin:   c.XeroRateLimitMargin,
		MaxRateLimitWaits: c.XeroMaxRateLimitWaits,
	}
}
