// Package common provides shared utilities for tickermetrics
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for tickermetrics
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Clients     ClientsConfig `toml:"clients"`
	Metrics     MetricsConfig `toml:"metrics"`
	Cache       CacheConfig   `toml:"cache"`
	Storage     StorageConfig `toml:"storage"`
	Polling     PollingConfig `toml:"polling"`
	Logging     LoggingConfig `toml:"logging"`
	Auth        AuthConfig    `toml:"auth"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

// ClientsConfig holds upstream provider configurations
type ClientsConfig struct {
	FMP          ProviderConfig `toml:"fmp"`
	AlphaVantage ProviderConfig `toml:"alphavantage"`
}

// ProviderConfig holds the settings shared by every provider client
type ProviderConfig struct {
	BaseURL   string `toml:"base_url" validate:"omitempty,url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit" validate:"min=0"`
	Timeout   string `toml:"timeout"`
	// Period and Limit shape the estimates request. Only FMP reads them.
	Period string `toml:"period" validate:"omitempty,oneof=annual quarter"`
	Limit  int    `toml:"limit" validate:"min=0"`
}

// GetTimeout parses and returns the per-call timeout
func (c *ProviderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// MetricsConfig controls the metrics computation
type MetricsConfig struct {
	DefaultPrice float64 `toml:"default_price" validate:"gt=0"`
	// CurrentYear overrides the calendar year used for "current year" lookups. Zero means now.
	CurrentYear int    `toml:"current_year" validate:"min=0"`
	MethodTag   string `toml:"method_tag" validate:"required"`
}

// CacheConfig selects the artifact cache backend and its warm-up behaviour
type CacheConfig struct {
	Backend      string   `toml:"backend" validate:"oneof=memory badger surrealdb postgres"`
	MaxAge       string   `toml:"max_age"`
	WarmTickers  []string `toml:"warm_tickers"`
	WarmSchedule string   `toml:"warm_schedule"`
}

// GetMaxAge returns the staleness bound. Zero disables staleness checks.
func (c *CacheConfig) GetMaxAge() time.Duration {
	if c.MaxAge == "" {
		return 0
	}
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// StorageConfig holds backend specific settings
type StorageConfig struct {
	Badger    BadgerConfig    `toml:"badger"`
	SurrealDB SurrealDBConfig `toml:"surrealdb"`
	Postgres  PostgresConfig  `toml:"postgres"`
}

// BadgerConfig holds the embedded store location
type BadgerConfig struct {
	Path string `toml:"path"`
}

// SurrealDBConfig holds SurrealDB connection settings
type SurrealDBConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int32  `toml:"max_conns"`
}

// PollingConfig holds the client-side polling protocol settings
type PollingConfig struct {
	Interval    string `toml:"interval"`
	MaxAttempts int    `toml:"max_attempts" validate:"min=1"`
}

// GetInterval parses and returns the retry interval
func (c *PollingConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// AuthConfig holds the bearer-token settings. An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Clients: ClientsConfig{
			FMP: ProviderConfig{
				BaseURL:   "https://financialmodelingprep.com",
				RateLimit: 5,
				Timeout:   "10s",
				Period:    "annual",
				Limit:     10,
			},
			AlphaVantage: ProviderConfig{
				BaseURL:   "https://www.alphavantage.co",
				RateLimit: 1,
				Timeout:   "10s",
			},
		},
		Metrics: MetricsConfig{
			DefaultPrice: 100,
			MethodTag:    "method_1c",
		},
		Cache: CacheConfig{
			Backend:      "memory",
			WarmSchedule: "0 6 * * *",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "data/cache"},
			SurrealDB: SurrealDBConfig{
				Address:   "ws://localhost:8000/rpc",
				Namespace: "tickermetrics",
				Database:  "tickermetrics",
				Username:  "root",
				Password:  "root",
			},
			Postgres: PostgresConfig{MaxConns: 4},
		},
		Polling: PollingConfig{
			Interval:    "2s",
			MaxAttempts: 15,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Outputs:  []string{"console"},
			FilePath: "./logs/tickermetrics.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is read first so provider keys can live outside the TOML.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TICKERMETRICS_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("TICKERMETRICS_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("TICKERMETRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("TICKERMETRICS_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}

	if backend := os.Getenv("TICKERMETRICS_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = strings.ToLower(backend)
	}

	if dsn := os.Getenv("TICKERMETRICS_POSTGRES_DSN"); dsn != "" {
		config.Storage.Postgres.DSN = dsn
	}

	if addr := os.Getenv("TICKERMETRICS_SURREALDB_ADDRESS"); addr != "" {
		config.Storage.SurrealDB.Address = addr
	}

	if v := os.Getenv("TICKERMETRICS_DEFAULT_PRICE"); v != "" {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			config.Metrics.DefaultPrice = p
		}
	}

	if v := os.Getenv("TICKERMETRICS_CURRENT_YEAR"); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			config.Metrics.CurrentYear = y
		}
	}

	if v := os.Getenv("TICKERMETRICS_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}

	config.Clients.FMP.APIKey = resolveAPIKey(config.Clients.FMP.APIKey, "FMP_API_KEY", "TICKERMETRICS_FMP_API_KEY")
	config.Clients.AlphaVantage.APIKey = resolveAPIKey(config.Clients.AlphaVantage.APIKey,
		"ALPHAVANTAGE_API_KEY", "ALPHA_VANTAGE_API_KEY", "TICKERMETRICS_ALPHAVANTAGE_API_KEY")
}

// resolveAPIKey returns the first non-empty environment variable, else the configured fallback.
func resolveAPIKey(fallback string, envNames ...string) string {
	for _, name := range envNames {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return fallback
}

var validate = validator.New()

// Validate checks the struct tags on the loaded configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.WarmSchedule != "" {
		if err := ValidateWarmSchedule(c.Cache.WarmSchedule); err != nil {
			return fmt.Errorf("invalid configuration: cache.warm_schedule: %w", err)
		}
	}
	return nil
}

// ValidateWarmSchedule checks a standard 5-field cron expression
func ValidateWarmSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// MissingAPIKeys lists providers that have no key configured. The service still starts;
// calls to those providers fail and the aggregator null-fills their fields.
func (c *Config) MissingAPIKeys() []string {
	var missing []string
	if c.Clients.FMP.APIKey == "" {
		missing = append(missing, "clients.fmp.api_key")
	}
	if c.Clients.AlphaVantage.APIKey == "" {
		missing = append(missing, "clients.alphavantage.api_key")
	}
	return missing
}

// ResolveCurrentYear returns the configured year, or the calendar year of now when unset.
func (c *MetricsConfig) ResolveCurrentYear(now time.Time) int {
	if c.CurrentYear > 0 {
		return c.CurrentYear
	}
	return now.Year()
}
