package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	MinWriteWorkers = 1
	MaxWriteWorkers = 4

	MinRetryAttempts = 1
	MaxRetryAttempts = 10
)

// Backends supported by the record store client
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendFirebird = "firebird"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	Backend               string        `yaml:"backend"`
	SheetID               string        `yaml:"sheet_id"`
	SheetTab              string        `yaml:"sheet_tab"`
	GoogleCredentialsFile string        `yaml:"google_credentials_file"`
	DatabaseURL           string        `yaml:"database_url"`
	TableName             string        `yaml:"table_name"`
	CacheTTL              time.Duration `yaml:"cache_ttl"`
	ViewMaxAge            time.Duration `yaml:"view_max_age"`
	WriteWorkers          int           `yaml:"write_workers"`
	RetryBase             time.Duration `yaml:"retry_base"`
	RetryMax              time.Duration `yaml:"retry_max"`
	RetryMaxAttempts      int           `yaml:"retry_max_attempts"`
	RetryJitter           float64       `yaml:"retry_jitter"`
	AttemptTimeout        time.Duration `yaml:"attempt_timeout"`
	RabbitMQURL           string        `yaml:"rabbitmq_url"`
	InstanceID            string        `yaml:"instance_id"`
	MetricsPort           string        `yaml:"metrics_port"`
	LogLevel              string        `yaml:"log_level"`
	LogFormat             string        `yaml:"log_format"`
	LogFile               string        `yaml:"log_file"`
	ExportEncoding        string        `yaml:"export_encoding"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	host, _ := os.Hostname()
	return &Config{
		Backend:          BackendSheets,
		SheetTab:         "Sheet1",
		TableName:        "abx_records",
		CacheTTL:         5 * time.Second,
		ViewMaxAge:       3 * time.Second,
		WriteWorkers:     2,
		RetryBase:        1 * time.Second,
		RetryMax:         30 * time.Second,
		RetryMaxAttempts: 5,
		RetryJitter:      0.2,
		AttemptTimeout:   10 * time.Second,
		InstanceID:       host,
		MetricsPort:      "9091",
		LogLevel:         "INFO",
		LogFormat:        "TEXT",
		ExportEncoding:   "utf-8",
	}
}

// Load reads .env, an optional YAML file named by ABX_CONFIG_FILE, then environment overrides
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := getEnv("ABX_CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Backend = getEnv("BACKEND", c.Backend)
	c.SheetID = getEnv("SHEET_ID", c.SheetID)
	c.SheetTab = getEnv("SHEET_TAB", c.SheetTab)
	c.GoogleCredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", c.GoogleCredentialsFile)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.TableName = getEnv("TABLE_NAME", c.TableName)
	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)
	c.ViewMaxAge = getEnvDuration("VIEW_MAX_AGE", c.ViewMaxAge)
	c.WriteWorkers = getEnvInt("WRITE_WORKERS", c.WriteWorkers)
	c.RetryBase = getEnvDuration("RETRY_BASE", c.RetryBase)
	c.RetryMax = getEnvDuration("RETRY_MAX", c.RetryMax)
	c.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", c.RetryMaxAttempts)
	c.RetryJitter = getEnvFloat("RETRY_JITTER", c.RetryJitter)
	c.AttemptTimeout = getEnvDuration("ATTEMPT_TIMEOUT", c.AttemptTimeout)
	c.RabbitMQURL = getEnv("RABBITMQ_URL", c.RabbitMQURL)
	c.InstanceID = getEnv("INSTANCE_ID", c.InstanceID)
	c.MetricsPort = getEnv("METRICS_PORT", c.MetricsPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.ExportEncoding = getEnv("EXPORT_ENCODING", c.ExportEncoding)
}

// clamp keeps the worker pool small because the spreadsheet backend rate-limits aggressively
func (c *Config) clamp() {
	if c.WriteWorkers > MaxWriteWorkers {
		slog.Warn("WRITE_WORKERS exceeds safety limit. Clamping to maximum", "requested", c.WriteWorkers, "limit", MaxWriteWorkers)
		c.WriteWorkers = MaxWriteWorkers
	} else if c.WriteWorkers < MinWriteWorkers {
		c.WriteWorkers = MinWriteWorkers
	}

	if c.RetryMaxAttempts > MaxRetryAttempts {
		slog.Warn("RETRY_MAX_ATTEMPTS exceeds safety limit. Clamping to maximum", "requested", c.RetryMaxAttempts, "limit", MaxRetryAttempts)
		c.RetryMaxAttempts = MaxRetryAttempts
	} else if c.RetryMaxAttempts < MinRetryAttempts {
		c.RetryMaxAttempts = MinRetryAttempts
	}

	if c.RetryJitter < 0 {
		c.RetryJitter = 0
	} else if c.RetryJitter > 0.5 {
		c.RetryJitter = 0.5
	}
}

// Validate checks backend-specific requirements
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSheets:
		if c.SheetID == "" {
			return fmt.Errorf("SHEET_ID is required for the sheets backend")
		}
	case BackendPostgres, BackendFirebird, BackendSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.CacheTTL < 0 || c.ViewMaxAge < 0 {
		return fmt.Errorf("cache ages must not be negative")
	}
	if c.RetryBase <= 0 || c.RetryMax < c.RetryBase {
		return fmt.Errorf("retry delays must satisfy 0 < RETRY_BASE <= RETRY_MAX")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("ATTEMPT_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if i, err := strconv.Atoi(value); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}
