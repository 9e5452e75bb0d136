// Package config loads application configuration and initializes logging.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Derivation DerivationConfig `yaml:"derivation" mapstructure:"derivation"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ScoringConfig tunes the aggregation pipeline.
type ScoringConfig struct {
	// InverseThreshold is the raw value at which an inverse KPI scores 0.
	InverseThreshold float64 `yaml:"inverse_threshold" mapstructure:"inverse_threshold"`
	// DefaultKPIWeight applies to a mapped KPI with no weight for the period.
	DefaultKPIWeight float64 `yaml:"default_kpi_weight" mapstructure:"default_kpi_weight"`
	// PillarWeightFallback uses the most recent prior period's pillar
	// weights when the run period has none.
	PillarWeightFallback bool `yaml:"pillar_weight_fallback" mapstructure:"pillar_weight_fallback"`
	// KPIConcurrency bounds the goroutines normalizing KPIs within one run.
	KPIConcurrency int `yaml:"kpi_concurrency" mapstructure:"kpi_concurrency"`
}

// DerivationConfig overrides derivation constants.
type DerivationConfig struct {
	// EmissionFactors maps an input field to kg CO2 per unit.
	EmissionFactors map[string]float64 `yaml:"emission_factors" mapstructure:"emission_factors"`
}

// RetryConfig controls retries of transient storage failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// InitialBackoff returns the configured initial backoff as a duration.
func (r RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the configured maximum backoff as a duration.
func (r RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMS) * time.Millisecond
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("scoring.inverse_threshold", 1000.0)
	v.SetDefault("scoring.default_kpi_weight", 0.0)
	v.SetDefault("scoring.pillar_weight_fallback", true)
	v.SetDefault("scoring.kpi_concurrency", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 50)
	v.SetDefault("retry.max_backoff_ms", 2000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver (ESG_STORE_DATABASE_URL)")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if c.Scoring.InverseThreshold <= 0 || math.IsInf(c.Scoring.InverseThreshold, 0) {
		errs = append(errs, "scoring.inverse_threshold must be a positive number")
	}
	if c.Scoring.DefaultKPIWeight < 0 || c.Scoring.DefaultKPIWeight > 100 {
		errs = append(errs, "scoring.default_kpi_weight must be between 0 and 100")
	}
	if c.Scoring.KPIConcurrency < 1 {
		errs = append(errs, "scoring.kpi_concurrency must be >= 1")
	}
	for field, f := range c.Derivation.EmissionFactors {
		if f < 0 {
			errs = append(errs, fmt.Sprintf("derivation.emission_factors.%s must be >= 0", field))
		}
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server.rate_limit_rps must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
