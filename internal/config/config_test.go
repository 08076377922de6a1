// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "test-version")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8012, cfg.Port)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, 10000.0, cfg.Optimizer.Penalty)
	assert.Equal(t, 1e-10, cfg.Optimizer.Tolerance)
	assert.Equal(t, "default", cfg.Data.RDACategory)
	assert.Nil(t, cfg.Data.Demographic())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
port: 9000
db_path: /tmp/diet.db
log:
  env: production
data:
  foods: foods.csv
  age_sex: female
  age_range: 19-30
optimizer:
  penalty: 5000
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	t.Setenv("DIET_OPT_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path, "v")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "/tmp/diet.db", cfg.DBPath)
	assert.Equal(t, "production", cfg.Log.Env)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "foods.csv", cfg.Data.Foods)
	assert.Equal(t, 5000.0, cfg.Optimizer.Penalty)

	demo := cfg.Data.Demographic()
	require.NotNil(t, demo)
	assert.Equal(t, "female", demo.Sex)
	assert.Equal(t, "19-30", demo.AgeRange)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: 8012, Optimizer: OptimizerConfig{Penalty: 10000, Tolerance: 1e-10}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"penalty", func(c *Config) { c.Optimizer.Penalty = -1 }},
		{"tolerance", func(c *Config) { c.Optimizer.Tolerance = 0 }},
		{"demographic", func(c *Config) { c.Data.Sex, c.Data.AgeRange = "child", "19-30" }},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
