// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"mcp-diet-opt/internal/models"
)

// Config holds all configuration for diet-opt. Values come from an optional YAML file;
// environment variables always override it.
type Config struct {
	Host    string `yaml:"host" env:"DIET_OPT_HOST" env-default:"0.0.0.0"`
	Port    int    `yaml:"port" env:"DIET_OPT_PORT" env-default:"8012"`
	DBPath  string `yaml:"db_path" env:"DIET_OPT_DB_PATH" env-default:"/data/diet-opt.db"`
	Version string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Data      DataConfig      `yaml:"data"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

type LogConfig struct {
	// Env "local" selects a console logger, anything else JSON.
	Env   string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// DataConfig points at the sources loaded at startup. Empty paths are skipped; the
// format of each source is taken from its extension.
type DataConfig struct {
	Nutrients   string `yaml:"nutrients" env:"DIET_OPT_NUTRIENTS"`
	Foods       string `yaml:"foods" env:"DIET_OPT_FOODS"`
	Constraints string `yaml:"constraints" env:"DIET_OPT_CONSTRAINTS"`

	// RDACategory seeds the constraint set from the nutrient RDAs when no
	// constraint source is given.
	RDACategory string `yaml:"rda_category" env:"DIET_OPT_RDA_CATEGORY" env-default:"default"`

	Sex      string `yaml:"age_sex" env:"DIET_OPT_AGE_SEX"`
	AgeRange string `yaml:"age_range" env:"DIET_OPT_AGE_RANGE"`
}

type OptimizerConfig struct {
	Penalty   float64 `yaml:"penalty" env:"DIET_OPT_PENALTY" env-default:"10000"`
	Tolerance float64 `yaml:"tolerance" env:"DIET_OPT_TOLERANCE" env-default:"1e-10"`
}

// Demographic returns the configured default demographic, or nil when none is set.
func (d DataConfig) Demographic() *models.Demographic {
	demo := models.Demographic{Sex: d.Sex, AgeRange: d.AgeRange}
	if demo.IsZero() {
		return nil
	}
	return &demo
}

// Load reads path when it exists and applies environment overrides. A missing file is
// not an error; defaults and the environment still apply.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			return cfg, cfg.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Optimizer.Penalty <= 0 {
		return fmt.Errorf("optimizer penalty must be positive, got %v", c.Optimizer.Penalty)
	}
	if c.Optimizer.Tolerance <= 0 {
		return fmt.Errorf("optimizer tolerance must be positive, got %v", c.Optimizer.Tolerance)
	}
	if demo := c.Data.Demographic(); demo != nil && !demo.Valid() {
		return fmt.Errorf("invalid demographic %q", demo.String())
	}
	return nil
}
