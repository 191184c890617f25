// Package config loads the engine configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"daytrader/internal/memgov"
)

// Config is the complete engine configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Alpaca      AlpacaConfig      `yaml:"alpaca"`
	Store       StoreConfig       `yaml:"store"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Memory      MemoryConfig      `yaml:"memory"`
	Engine      EngineConfig      `yaml:"engine"`
}

type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// AlpacaConfig holds the market-data credentials.
type AlpacaConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebhookConfig struct {
	URL string `yaml:"url"`
}

type DashboardConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// FetchConfig bounds the market-data and store batch paths.
type FetchConfig struct {
	MaxTickersPerCycle  int `yaml:"max_tickers_per_cycle"`
	MaxConcurrentFetch  int `yaml:"max_concurrent_fetch"`
	StoreBatchSize      int `yaml:"store_batch_size"`
	MarketDataBatchSize int `yaml:"market_data_batch_size"`
}

// MemoryConfig tunes the governor thresholds.
type MemoryConfig struct {
	LimitMB  float64 `yaml:"limit_mb"`
	DynoType string  `yaml:"dyno_type"`
}

type EngineConfig struct {
	StartupDelaySeconds int `yaml:"startup_delay_seconds"`
}

// Load reads the YAML file at path (a missing file is fine, defaults apply),
// layers environment overrides on top, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// env-only deployment
		default:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: EnvironmentConfig{LogLevel: "info"},
		Store:       StoreConfig{Path: "data/daytrader"},
		Dashboard:   DashboardConfig{Port: 8080},
		// Fetch bounds default to zero, meaning "use the dyno preset".
		Fetch: FetchConfig{MarketDataBatchSize: 10},
	}
}

// applyEnv layers the recognized environment variables over the file values.
// The getenv parameter is swappable in tests.
func (c *Config) applyEnv(getenv func(string) string) {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(dst *float64, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setStr(&c.Environment.LogLevel, "LOG_LEVEL")
	setStr(&c.Alpaca.APIKey, "ALPACA_API_KEY")
	setStr(&c.Alpaca.APISecret, "ALPACA_API_SECRET")
	setStr(&c.Alpaca.BaseURL, "ALPACA_BASE_URL")
	setStr(&c.Store.Path, "BADGER_PATH")
	setStr(&c.Webhook.URL, "WEBHOOK_URL")
	setInt(&c.Dashboard.Port, "PORT")
	setStr(&c.Dashboard.AuthToken, "DASHBOARD_AUTH_TOKEN")
	setInt(&c.Fetch.MaxTickersPerCycle, "MAX_TICKERS_PER_CYCLE")
	setInt(&c.Fetch.MaxConcurrentFetch, "MAX_CONCURRENT_FETCH")
	setInt(&c.Fetch.StoreBatchSize, "DYNAMODB_BATCH_SIZE")
	setInt(&c.Fetch.MarketDataBatchSize, "MARKET_DATA_BATCH_SIZE")
	setFloat(&c.Memory.LimitMB, "MEMORY_LIMIT_MB")
	setStr(&c.Memory.DynoType, "DYNO_TYPE")
	setInt(&c.Engine.StartupDelaySeconds, "INDICATOR_STARTUP_DELAY_SECONDS")
}

// Validate refuses a configuration the engine cannot start with.
func (c *Config) Validate() error {
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return fmt.Errorf("market-data credentials missing: set ALPACA_API_KEY and ALPACA_API_SECRET")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.Environment.LogLevel)
	}
	if c.Fetch.MaxTickersPerCycle < 0 {
		return fmt.Errorf("max_tickers_per_cycle cannot be negative, got %d", c.Fetch.MaxTickersPerCycle)
	}
	if c.Fetch.MaxConcurrentFetch < 0 {
		return fmt.Errorf("max_concurrent_fetch cannot be negative, got %d", c.Fetch.MaxConcurrentFetch)
	}
	if c.Fetch.StoreBatchSize < 0 || c.Fetch.StoreBatchSize > 25 {
		return fmt.Errorf("store_batch_size must be in 0..25, got %d", c.Fetch.StoreBatchSize)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port %d", c.Dashboard.Port)
	}
	if c.Memory.LimitMB < 0 {
		return fmt.Errorf("memory limit_mb cannot be negative, got %.0f", c.Memory.LimitMB)
	}
	return nil
}

// GovernorLimits folds the dyno preset, the explicit memory limit, and the
// fetch overrides into the governor's thresholds.
func (c *Config) GovernorLimits() memgov.Limits {
	l := memgov.LimitsForDyno(c.Memory.DynoType, c.Memory.LimitMB)
	if c.Fetch.MaxConcurrentFetch > 0 {
		l.MaxConcurrentFetch = c.Fetch.MaxConcurrentFetch
	}
	if c.Fetch.StoreBatchSize > 0 {
		l.BatchSize = c.Fetch.StoreBatchSize
	}
	if c.Fetch.MaxTickersPerCycle > 0 {
		l.MaxTickersPerCycle = c.Fetch.MaxTickersPerCycle
	}
	return l
}
