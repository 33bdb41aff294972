// Package config loads the edge lab configuration from an optional YAML file,
// EDGELAB_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"edge-lab/internal/domain"
	"edge-lab/internal/logger"
	"edge-lab/internal/validation"
)

// EnvPrefix is the prefix of environment overrides, e.g. EDGELAB_STORAGE_BACKEND.
const EnvPrefix = "EDGELAB"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the root configuration.
type Config struct {
	Storage    StorageConfig     `mapstructure:"storage"`
	Logger     logger.Config     `mapstructure:"logger"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Engine     EngineConfig      `mapstructure:"engine"`
	Validation validation.Config `mapstructure:"validation"`
	Manifest   ManifestConfig    `mapstructure:"manifest"`
}

// StorageConfig selects and addresses the stores.
type StorageConfig struct {
	// Backend of the record sets: memory or postgres.
	Backend     string `mapstructure:"backend"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	// ClickHouseDSN holds bars, session features and backtest results; required with postgres.
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	// RedisAddr, when set, replaces the postgres hash index with a shared redis index.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	// SQLitePath, when set, journals generation runs and test audit rows locally.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // "" disables the endpoint
}

// EngineConfig sizes the worker pool.
type EngineConfig struct {
	Workers int `mapstructure:"workers"`
}

// ManifestConfig controls approval and activation.
type ManifestConfig struct {
	MinTier   string   `mapstructure:"min_tier"`
	Consumers []string `mapstructure:"consumers"`
}

// Load reads configPath (optional) and applies environment overrides on top
// of the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
		if c.Storage.ClickHouseDSN == "" {
			errs = append(errs, errors.New("storage.clickhouse_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	if !slices.Contains([]string{"json", "text"}, c.Logger.Format) {
		errs = append(errs, fmt.Errorf("logger.format must be json or text, got %q", c.Logger.Format))
	}
	if !slices.Contains([]string{"stdout", "stderr", "file", "both"}, c.Logger.Output) {
		errs = append(errs, fmt.Errorf("logger.output must be stdout, file or both, got %q", c.Logger.Output))
	}
	if c.Engine.Workers <= 0 {
		errs = append(errs, fmt.Errorf("engine.workers must be > 0, got %d", c.Engine.Workers))
	}
	if !domain.ConfidenceTier(c.Manifest.MinTier).IsValid() {
		errs = append(errs, fmt.Errorf("unknown manifest.min_tier %q", c.Manifest.MinTier))
	}
	if len(c.Manifest.Consumers) == 0 {
		errs = append(errs, errors.New("manifest.consumers must not be empty"))
	}
	if err := c.Validation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("validation: %w", err))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.sqlite_path", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.file_path", "logs/edgelab.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("engine.workers", 4)

	d := validation.DefaultConfig()
	v.SetDefault("validation.tick_size", d.TickSize)
	v.SetDefault("validation.cost_ticks", d.CostTicks)
	v.SetDefault("validation.missed_fill", d.MissedFill)
	v.SetDefault("validation.cost_min_passes", d.CostMinPasses)
	v.SetDefault("validation.delay_bars", d.DelayBars)
	v.SetDefault("validation.noise_levels", d.NoiseLevels)
	v.SetDefault("validation.noise_seed", d.NoiseSeed)
	v.SetDefault("validation.reorder_shuffles", d.ReorderShuffles)
	v.SetDefault("validation.reorder_seed", d.ReorderSeed)
	v.SetDefault("validation.reorder_dd_multiple", d.ReorderDDMultiple)
	v.SetDefault("validation.max_step_drop", d.MaxStepDrop)
	v.SetDefault("validation.regime_min_profitable", d.RegimeMinProfitable)
	v.SetDefault("validation.concentration_max", d.ConcentrationMax)
	v.SetDefault("validation.weights.expectancy", d.Weights.Expectancy)
	v.SetDefault("validation.weights.trade_count", d.Weights.TradeCount)
	v.SetDefault("validation.weights.cost_pass", d.Weights.CostPass)
	v.SetDefault("validation.weights.attack_smooth", d.Weights.AttackSmooth)
	v.SetDefault("validation.weights.regime_pass", d.Weights.RegimePass)
	v.SetDefault("validation.expectancy_cap_r", d.ExpectancyCapR)
	v.SetDefault("validation.trade_count_cap", d.TradeCountCap)
	v.SetDefault("validation.tiers.very_high", d.Tiers.VeryHigh)
	v.SetDefault("validation.tiers.high", d.Tiers.High)
	v.SetDefault("validation.tiers.medium", d.Tiers.Medium)

	v.SetDefault("manifest.min_tier", string(domain.TierMedium))
	v.SetDefault("manifest.consumers", []string{"trading", "docs"})
}
