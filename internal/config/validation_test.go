//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "AlphaFuse",
			Version:     Version,
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "alphafuse",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     6379,
			CacheTTL: 3600,
		},
		NATS: NATSConfig{
			Enabled:         true,
			URL:             "nats://localhost:4222",
			DecisionSubject: "alphafuse.decisions",
		},
		Backtest: BacktestConfig{
			InitialCash:  100000,
			FeeRate:      0.0015,
			SlippageRate: 0.0005,
			Concurrency:  -1,
			TargetMetric: "total_return",
			LookbackDays: 365,
			Interval:     "1d",
		},
		Ensemble: ensemble.DefaultConfig(),
		Worker: WorkerConfig{
			Symbols:          []string{"600519", "000001"},
			MacroSymbol:      "000300",
			SymbolsPerSecond: 1,
			StoreTimeout:     10,
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "missing app name",
			modify:      func(c *Config) { c.App.Name = "" },
			expectError: "app.name",
		},
		{
			name:        "invalid environment",
			modify:      func(c *Config) { c.App.Environment = "invalid_env" },
			expectError: "Invalid environment",
		},
		{
			name:        "invalid log format",
			modify:      func(c *Config) { c.App.LogFormat = "xml" },
			expectError: "app.log_format",
		},
		{
			name:        "database port out of range",
			modify:      func(c *Config) { c.Database.Port = 70000 },
			expectError: "Invalid port 70000",
		},
		{
			name: "database password outside development",
			modify: func(c *Config) {
				c.App.Environment = "staging"
				c.Database.Password = ""
			},
			expectError: "database.password",
		},
		{
			name:        "zero pool size",
			modify:      func(c *Config) { c.Database.PoolSize = 0 },
			expectError: "database.pool_size",
		},
		{
			name:        "redis db out of range",
			modify:      func(c *Config) { c.Redis.DB = 16 },
			expectError: "redis.db",
		},
		{
			name:        "bad nats url",
			modify:      func(c *Config) { c.NATS.URL = "http://localhost:4222" },
			expectError: "Invalid NATS URL",
		},
		{
			name: "telegram without token",
			modify: func(c *Config) {
				c.Telegram = TelegramConfig{Enabled: true, ChatIDs: []int64{123456789}}
			},
			expectError: "telegram.bot_token",
		},
		{
			name: "telegram without chats",
			modify: func(c *Config) {
				c.Telegram = TelegramConfig{Enabled: true, BotToken: "token"}
			},
			expectError: "telegram.chat_ids",
		},
		{
			name: "telegram zero chat id",
			modify: func(c *Config) {
				c.Telegram = TelegramConfig{Enabled: true, BotToken: "token", ChatIDs: []int64{42, 0}}
			},
			expectError: "telegram.chat_ids[1]",
		},
		{
			name:        "non-positive initial cash",
			modify:      func(c *Config) { c.Backtest.InitialCash = 0 },
			expectError: "backtest.initial_cash",
		},
		{
			name:        "fee rate too large",
			modify:      func(c *Config) { c.Backtest.FeeRate = 0.5 },
			expectError: "backtest.fee_rate",
		},
		{
			name:        "unknown target metric",
			modify:      func(c *Config) { c.Backtest.TargetMetric = "vibes" },
			expectError: "Unknown target metric 'vibes'",
		},
		{
			name:        "lookback too short",
			modify:      func(c *Config) { c.Backtest.LookbackDays = 1 },
			expectError: "backtest.lookback_days",
		},
		{
			name:        "invalid ensemble",
			modify:      func(c *Config) { c.Ensemble.MaxSingleWeight = 2 },
			expectError: "max_single_weight",
		},
		{
			name:        "blank symbol",
			modify:      func(c *Config) { c.Worker.Symbols = []string{"600519", " "} },
			expectError: "worker.symbols[1]",
		},
		{
			name:        "zero pacing",
			modify:      func(c *Config) { c.Worker.SymbolsPerSecond = 0 },
			expectError: "worker.symbols_per_second",
		},
		{
			name:        "missing metrics port",
			modify:      func(c *Config) { c.Monitoring.PrometheusPort = 0 },
			expectError: "monitoring.prometheus_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidate_DisabledSectionsSkipped(t *testing.T) {
	cfg := getValidConfig()
	cfg.Redis = RedisConfig{Enabled: false}
	cfg.NATS = NATSConfig{Enabled: false}
	cfg.Telegram = TelegramConfig{Enabled: false}
	cfg.Monitoring = MonitoringConfig{EnableMetrics: false}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_EmptyTargetMetricUsesDefault(t *testing.T) {
	cfg := getValidConfig()
	cfg.Backtest.TargetMetric = ""

	assert.NoError(t, cfg.Validate())
}

func TestValidateEnvironmentRequirements(t *testing.T) {
	t.Run("SSL disabled in production", func(t *testing.T) {
		cfg := getValidConfig()
		cfg.App.Environment = "production"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SSL must be enabled for database in production")
		assert.Contains(t, err.Error(), "ALPHAFUSE_DATABASE_PASSWORD")
	})

	t.Run("production with secrets from env", func(t *testing.T) {
		t.Setenv("ALPHAFUSE_DATABASE_PASSWORD", "from-env")
		cfg := getValidConfig()
		cfg.App.Environment = "production"
		cfg.Database.SSLMode = "require"
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
	}

	errMsg := errors.Error()

	assert.Contains(t, errMsg, "Configuration validation failed with 2 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
	assert.Contains(t, errMsg, "Please fix the above errors and try again")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}
