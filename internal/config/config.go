package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

// Version is the canonical version of AlphaFuse
const Version = "0.3.0"

// EnvPrefix prefixes every environment override, e.g. ALPHAFUSE_DATABASE_HOST
const EnvPrefix = "ALPHAFUSE"

// Config holds all application configuration
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Backtest   BacktestConfig   `mapstructure:"backtest"`
	Ensemble   ensemble.Config  `mapstructure:"ensemble"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // json or console
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains settings for the candle cache
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

// NATSConfig contains settings for decision fan-out
type NATSConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	URL             string `mapstructure:"url"`
	DecisionSubject string `mapstructure:"decision_subject"`
}

// TelegramConfig contains settings for run alerts over a Telegram bot
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"` // prefer ALPHAFUSE_TELEGRAM_BOT_TOKEN
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// BacktestConfig contains simulator and optimizer settings
type BacktestConfig struct {
	InitialCash  float64 `mapstructure:"initial_cash"`
	FeeRate      float64 `mapstructure:"fee_rate"`      // 0.0015 = 0.15% per sell
	SlippageRate float64 `mapstructure:"slippage_rate"` // 0.0005 = 0.05% per fill
	Concurrency  int     `mapstructure:"concurrency"`   // <= 0 uses every CPU
	TargetMetric string  `mapstructure:"target_metric"`
	LookbackDays int     `mapstructure:"lookback_days"`
	Interval     string  `mapstructure:"interval"` // candle interval, e.g. 1d
}

// WorkerConfig contains settings for the periodic multi-symbol worker
type WorkerConfig struct {
	Symbols          []string `mapstructure:"symbols"`
	MacroSymbol      string   `mapstructure:"macro_symbol"` // optional, drives the regime overlay
	RunInterval      int      `mapstructure:"run_interval"` // seconds, 0 runs once
	SymbolsPerSecond float64  `mapstructure:"symbols_per_second"`
	PoolFile         string   `mapstructure:"pool_file"`     // read the pool from a file instead of the database
	StoreTimeout     int      `mapstructure:"store_timeout"` // seconds per persistence call
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) error {
	// App defaults
	v.SetDefault("app.name", "AlphaFuse")
	v.SetDefault("app.version", Version)
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "alphafuse")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 3600)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.decision_subject", "alphafuse.decisions")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_ids", []int64{})

	// Backtest defaults
	sim := backtest.DefaultSimulatorConfig()
	v.SetDefault("backtest.initial_cash", sim.InitialCash)
	v.SetDefault("backtest.fee_rate", sim.FeeRate)
	v.SetDefault("backtest.slippage_rate", sim.SlippageRate)
	v.SetDefault("backtest.concurrency", -1)
	v.SetDefault("backtest.target_metric", backtest.DefaultObjective)
	v.SetDefault("backtest.lookback_days", 365)
	v.SetDefault("backtest.interval", "1d")

	// Ensemble defaults mirror ensemble.DefaultConfig so every key is env-overridable
	defaults, err := ensembleDefaults()
	if err != nil {
		return err
	}
	for key, value := range defaults {
		v.SetDefault("ensemble."+key, value)
	}

	// Worker defaults
	v.SetDefault("worker.symbols", []string{})
	v.SetDefault("worker.macro_symbol", "")
	v.SetDefault("worker.run_interval", 0)
	v.SetDefault("worker.symbols_per_second", 1.0)
	v.SetDefault("worker.pool_file", "")
	v.SetDefault("worker.store_timeout", 10)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)

	return nil
}

// ensembleDefaults flattens ensemble.DefaultConfig into its config keys
func ensembleDefaults() (map[string]interface{}, error) {
	raw, err := json.Marshal(ensemble.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode ensemble defaults: %w", err)
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode ensemble defaults: %w", err)
	}
	return out, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetURL returns the PostgreSQL connection URL used by migrations
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetCacheTTL returns the candle cache TTL as time.Duration
func (c *RedisConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// SimulatorConfig converts the backtest section into the simulator settings
func (c *BacktestConfig) SimulatorConfig() backtest.SimulatorConfig {
	return backtest.SimulatorConfig{
		InitialCash:  c.InitialCash,
		FeeRate:      c.FeeRate,
		SlippageRate: c.SlippageRate,
	}
}

// Lookback returns the backtest window as time.Duration
func (c *BacktestConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// GetRunInterval returns the worker period as time.Duration
func (c *WorkerConfig) GetRunInterval() time.Duration {
	return time.Duration(c.RunInterval) * time.Second
}

// GetStoreTimeout returns the persistence timeout as time.Duration
func (c *WorkerConfig) GetStoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Second
}
