package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rewired-gh/quakeloss/internal/vulnerability"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Calculation CalculationConfig `mapstructure:"calculation"`
	Input       InputConfig       `mapstructure:"input"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CalculationConfig holds event-based loss calculation options
type CalculationConfig struct {
	ConditionalLossPoEs []float64 `mapstructure:"conditional_loss_poes"`
	Insured             bool      `mapstructure:"insured"`
	AggregateBins       int       `mapstructure:"aggregate_bins"`  // 0 = no binning
	CurveResolution     int       `mapstructure:"curve_resolution"` // 0 = one point per distinct loss
	Sampling            string    `mapstructure:"sampling"`         // "mean" or "sample"
	Seed                uint64    `mapstructure:"seed"`
	Workers             int       `mapstructure:"workers"`
}

// InputConfig locates the exposure document
type InputConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	// QUAKELOSS_CALCULATION_WORKERS overrides calculation.workers, and so on.
	v.SetEnvPrefix("QUAKELOSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Calculation defaults
	v.SetDefault("calculation.conditional_loss_poes", []float64{0.5})
	v.SetDefault("calculation.insured", false)
	v.SetDefault("calculation.aggregate_bins", 0)
	v.SetDefault("calculation.curve_resolution", 50)
	v.SetDefault("calculation.sampling", "mean")
	v.SetDefault("calculation.seed", 42)
	v.SetDefault("calculation.workers", 1)

	// Input has no usable default; registering the key lets the env override it
	v.SetDefault("input.path", "")

	// Storage defaults
	v.SetDefault("storage.db_path", filepath.Join(os.TempDir(), "quakeloss", "results.db"))
	v.SetDefault("storage.max_runs", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Calculation config
	if len(c.Calculation.ConditionalLossPoEs) == 0 {
		return fmt.Errorf("calculation.conditional_loss_poes must contain at least one probability")
	}
	for _, poe := range c.Calculation.ConditionalLossPoEs {
		if poe <= 0 || poe > 1 {
			return fmt.Errorf("calculation.conditional_loss_poes must be in (0, 1], got %g", poe)
		}
	}
	if c.Calculation.AggregateBins < 0 {
		return fmt.Errorf("calculation.aggregate_bins must not be negative")
	}
	if c.Calculation.CurveResolution < 0 || c.Calculation.CurveResolution == 1 {
		return fmt.Errorf("calculation.curve_resolution must be 0 or at least 2")
	}
	if _, err := vulnerability.ParseMode(c.Calculation.Sampling); err != nil {
		return fmt.Errorf("calculation.sampling must be one of: mean, sample: %w", err)
	}
	if c.Calculation.Workers < 1 {
		return fmt.Errorf("calculation.workers must be at least 1")
	}

	// Validate Input config
	if c.Input.Path == "" {
		return fmt.Errorf("input.path is required")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
