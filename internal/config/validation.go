package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateTelegram()...)
	errors = append(errors, c.validateBacktest()...)
	errors = append(errors, c.validateEnsemble()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateMonitoring()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	validEnvs := []string{"development", "staging", "production"}
	if !contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	if c.App.LogFormat != "" && c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be json or console", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	errors = append(errors, validatePort("database.port", c.Database.Port)...)

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required outside development",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: fmt.Sprintf("Invalid pool size %d. Must be at least 1", c.Database.PoolSize),
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	if !c.Redis.Enabled {
		return nil
	}

	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required when the candle cache is enabled",
		})
	}

	errors = append(errors, validatePort("redis.port", c.Redis.Port)...)

	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Message: fmt.Sprintf("Invalid Redis DB %d. Must be between 0-15", c.Redis.DB),
		})
	}

	if c.Redis.CacheTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.cache_ttl",
			Message: "Cache TTL must be positive",
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	if !c.NATS.Enabled {
		return nil
	}

	var errors ValidationErrors

	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: fmt.Sprintf("Invalid NATS URL '%s'. Must start with nats:// or tls://", c.NATS.URL),
		})
	}

	if c.NATS.DecisionSubject == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.decision_subject",
			Message: "Decision subject is required when NATS is enabled",
		})
	}

	return errors
}

func (c *Config) validateTelegram() ValidationErrors {
	if !c.Telegram.Enabled {
		return nil
	}

	var errors ValidationErrors

	if c.Telegram.BotToken == "" {
		errors = append(errors, ValidationError{
			Field:   "telegram.bot_token",
			Message: fmt.Sprintf("Bot token is required when Telegram alerts are enabled (set %s_TELEGRAM_BOT_TOKEN)", EnvPrefix),
		})
	}

	if len(c.Telegram.ChatIDs) == 0 {
		errors = append(errors, ValidationError{
			Field:   "telegram.chat_ids",
			Message: "At least one chat ID is required when Telegram alerts are enabled",
		})
	}

	for i, id := range c.Telegram.ChatIDs {
		if id == 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("telegram.chat_ids[%d]", i),
				Message: "Chat ID must not be zero",
			})
		}
	}

	return errors
}

func (c *Config) validateBacktest() ValidationErrors {
	var errors ValidationErrors
	b := c.Backtest

	if b.InitialCash <= 0 {
		errors = append(errors, ValidationError{
			Field:   "backtest.initial_cash",
			Message: fmt.Sprintf("Initial cash must be positive, got %v", b.InitialCash),
		})
	}

	if b.FeeRate < 0 || b.FeeRate >= 0.1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.fee_rate",
			Message: fmt.Sprintf("Invalid fee rate %v. Must be in [0, 0.1)", b.FeeRate),
		})
	}

	if b.SlippageRate < 0 || b.SlippageRate >= 0.1 {
		errors = append(errors, ValidationError{
			Field:   "backtest.slippage_rate",
			Message: fmt.Sprintf("Invalid slippage rate %v. Must be in [0, 0.1)", b.SlippageRate),
		})
	}

	if _, err := backtest.ObjectiveByName(b.TargetMetric); err != nil {
		errors = append(errors, ValidationError{
			Field:   "backtest.target_metric",
			Message: fmt.Sprintf("Unknown target metric '%s'. Must be one of: %v", b.TargetMetric, backtest.ObjectiveNames()),
		})
	}

	if b.LookbackDays < 2 {
		errors = append(errors, ValidationError{
			Field:   "backtest.lookback_days",
			Message: "Lookback must cover at least 2 days",
		})
	}

	if b.Interval == "" {
		errors = append(errors, ValidationError{
			Field:   "backtest.interval",
			Message: "Candle interval is required",
		})
	}

	return errors
}

func (c *Config) validateEnsemble() ValidationErrors {
	if err := c.Ensemble.Validate(); err != nil {
		return ValidationErrors{{Field: "ensemble", Message: err.Error()}}
	}
	return nil
}

func (c *Config) validateWorker() ValidationErrors {
	var errors ValidationErrors

	for i, symbol := range c.Worker.Symbols {
		if strings.TrimSpace(symbol) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("worker.symbols[%d]", i),
				Message: "Symbol must not be empty",
			})
		}
	}

	if c.Worker.RunInterval < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.run_interval",
			Message: "Run interval must not be negative",
		})
	}

	if c.Worker.SymbolsPerSecond <= 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.symbols_per_second",
			Message: "Symbols per second must be positive",
		})
	}

	if c.Worker.StoreTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.store_timeout",
			Message: "Store timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	if !c.Monitoring.EnableMetrics {
		return nil
	}
	return validatePort("monitoring.prometheus_port", c.Monitoring.PrometheusPort)
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment != "production" {
		return nil
	}

	if c.Database.SSLMode == "disable" {
		errors = append(errors, ValidationError{
			Field:   "database.ssl_mode",
			Message: "SSL must be enabled for database in production",
		})
	}

	if c.App.LogLevel == "debug" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Debug logging should not be used in production",
		})
	}

	envVar := EnvPrefix + "_DATABASE_PASSWORD"
	if os.Getenv(envVar) == "" {
		errors = append(errors, ValidationError{
			Field:   "environment",
			Message: fmt.Sprintf("Environment variable %s is required in production", envVar),
		})
	}

	return errors
}

func validatePort(field string, port int) ValidationErrors {
	if port == 0 {
		return ValidationErrors{{Field: field, Message: "Port is required"}}
	}
	if port < 1 || port > 65535 {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", port)}}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
