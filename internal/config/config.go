// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Trends     TrendsConfig     `mapstructure:"trends"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Validation ValidationConfig `mapstructure:"validation"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	RunStore   RunStoreConfig   `mapstructure:"runstore"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// TrendsConfig governs what each run fetches.
type TrendsConfig struct {
	// Terms are fetched in order; term identity is case-sensitive.
	Terms        []string `mapstructure:"terms"`
	Geo          string   `mapstructure:"geo"`
	LookbackDays int      `mapstructure:"lookback_days"`
	FailFast     bool     `mapstructure:"fail_fast"`
}

// ProviderConfig configures the SerpApi client.
type ProviderConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
}

// RetryConfig configures provider retry behavior.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// ValidationConfig tunes data quality checks.
type ValidationConfig struct {
	NullDensityThreshold float64 `mapstructure:"null_density_threshold"`
}

// DatasetConfig sets where the merged dataset lives.
type DatasetConfig struct {
	Path string `mapstructure:"path"`
}

// RunStoreConfig selects and configures run bookkeeping storage.
type RunStoreConfig struct {
	// Provider is "memory" or "postgres".
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRENDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("trends.geo", "US")
	v.SetDefault("trends.lookback_days", 7)
	v.SetDefault("trends.fail_fast", false)
	v.SetDefault("provider.base_url", "https://serpapi.com/search.json")
	v.SetDefault("provider.timeout_seconds", 15)
	v.SetDefault("provider.rate_limit_rps", 1.0)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay_ms", 2000)
	v.SetDefault("retry.max_delay_ms", 60000)
	v.SetDefault("validation.null_density_threshold", 0.5)
	v.SetDefault("dataset.path", "data/trends.csv")
	v.SetDefault("runstore.provider", "memory")
	v.SetDefault("runstore.table", "runs")
	v.SetDefault("runstore.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Violations wrap
// trends.ErrInvalidConfig so callers can distinguish operator error from
// runtime failure.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("%w: server.port must be > 0", trends.ErrInvalidConfig)
	}
	if len(c.Trends.Terms) == 0 {
		return fmt.Errorf("%w: trends.terms must list at least one search term", trends.ErrInvalidConfig)
	}
	for i, term := range c.Trends.Terms {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("%w: trends.terms[%d] is empty", trends.ErrInvalidConfig, i)
		}
	}
	if strings.TrimSpace(c.Trends.Geo) == "" {
		return fmt.Errorf("%w: trends.geo is required", trends.ErrInvalidConfig)
	}
	if c.Trends.LookbackDays <= 0 {
		return fmt.Errorf("%w: trends.lookback_days must be > 0", trends.ErrInvalidConfig)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("%w: provider.api_key is required", trends.ErrInvalidConfig)
	}
	if c.Provider.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: provider.timeout_seconds must be > 0", trends.ErrInvalidConfig)
	}
	if c.Provider.RateLimitRPS < 0 {
		return fmt.Errorf("%w: provider.rate_limit_rps must be >= 0", trends.ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry.max_attempts must be > 0", trends.ErrInvalidConfig)
	}
	if c.Validation.NullDensityThreshold <= 0 || c.Validation.NullDensityThreshold > 1 {
		return fmt.Errorf("%w: validation.null_density_threshold must be in (0, 1]", trends.ErrInvalidConfig)
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("%w: dataset.path is required", trends.ErrInvalidConfig)
	}
	switch c.RunStore.Provider {
	case "memory":
	case "postgres":
		if c.RunStore.DSN == "" {
			return fmt.Errorf("%w: runstore.dsn is required when runstore.provider is postgres", trends.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: runstore.provider must be memory or postgres, got %q", trends.ErrInvalidConfig, c.RunStore.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("%w: auth.api_key must be set when auth is enabled", trends.ErrInvalidConfig)
	}
	return nil
}

// ProviderTimeout converts the provider timeout into a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// RetryBaseDelay converts the retry base delay into a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// RetryMaxDelay converts the retry delay cap into a duration.
func (c Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}

// RequestTimeout converts the HTTP request budget into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
