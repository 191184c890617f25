package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBase() *Config {
	cfg := defaults()
	cfg.Alpaca.APIKey = "key"
	cfg.Alpaca.APISecret = "secret"
	return cfg
}

func envFrom(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Environment.LogLevel)
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Equal(t, "data/daytrader", cfg.Store.Path)
}

func TestLoadYAMLFile(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment:
  log_level: debug
dashboard:
  port: 9090
fetch:
  max_tickers_per_cycle: 10
memory:
  dyno_type: standard-2x
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Environment.LogLevel)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
	assert.Equal(t, 10, cfg.Fetch.MaxTickersPerCycle)
	assert.Equal(t, "standard-2x", cfg.Memory.DynoType)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: ["), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoadFailsWithoutCredentials(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_API_SECRET", "")

	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials missing")
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg := validBase()
	cfg.Environment.LogLevel = "info"
	cfg.Dashboard.Port = 8080

	cfg.applyEnv(envFrom(map[string]string{
		"LOG_LEVEL":                       "warn",
		"PORT":                            "3000",
		"MAX_TICKERS_PER_CYCLE":           "15",
		"MAX_CONCURRENT_FETCH":            "8",
		"DYNAMODB_BATCH_SIZE":             "20",
		"MEMORY_LIMIT_MB":                 "512",
		"DYNO_TYPE":                       "performance-m",
		"INDICATOR_STARTUP_DELAY_SECONDS": "7",
		"WEBHOOK_URL":                     "https://hooks.example.com/signals",
	}))

	assert.Equal(t, "warn", cfg.Environment.LogLevel)
	assert.Equal(t, 3000, cfg.Dashboard.Port)
	assert.Equal(t, 15, cfg.Fetch.MaxTickersPerCycle)
	assert.Equal(t, 8, cfg.Fetch.MaxConcurrentFetch)
	assert.Equal(t, 20, cfg.Fetch.StoreBatchSize)
	assert.Equal(t, 512.0, cfg.Memory.LimitMB)
	assert.Equal(t, "performance-m", cfg.Memory.DynoType)
	assert.Equal(t, 7, cfg.Engine.StartupDelaySeconds)
	assert.Equal(t, "https://hooks.example.com/signals", cfg.Webhook.URL)
}

func TestApplyEnvIgnoresUnparseableNumbers(t *testing.T) {
	cfg := validBase()
	cfg.Dashboard.Port = 8080
	cfg.applyEnv(envFrom(map[string]string{"PORT": "not-a-number"}))
	assert.Equal(t, 8080, cfg.Dashboard.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "verbose" }, "log_level"},
		{"negative tickers", func(c *Config) { c.Fetch.MaxTickersPerCycle = -1 }, "max_tickers_per_cycle"},
		{"oversized store batch", func(c *Config) { c.Fetch.StoreBatchSize = 26 }, "store_batch_size"},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }, "port"},
		{"negative memory", func(c *Config) { c.Memory.LimitMB = -1 }, "limit_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGovernorLimits(t *testing.T) {
	cfg := validBase()
	cfg.Memory.DynoType = "standard-2x"
	l := cfg.GovernorLimits()
	assert.Equal(t, 10, l.MaxConcurrentFetch, "dyno preset applies when fetch bounds are unset")
	assert.Equal(t, 800.0, l.PauseMB)

	cfg.Fetch.MaxConcurrentFetch = 3
	cfg.Fetch.StoreBatchSize = 20
	cfg.Fetch.MaxTickersPerCycle = 12
	l = cfg.GovernorLimits()
	assert.Equal(t, 3, l.MaxConcurrentFetch)
	assert.Equal(t, 20, l.BatchSize)
	assert.Equal(t, 12, l.MaxTickersPerCycle)

	cfg.Memory.LimitMB = 1000
	l = cfg.GovernorLimits()
	assert.Equal(t, 400.0, l.PauseMB, "explicit memory limit rescales thresholds")
	assert.Equal(t, 550.0, l.AbortMB)
}
