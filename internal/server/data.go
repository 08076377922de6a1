// internal/server/data.go
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"mcp-diet-opt/internal/catalog"
	"mcp-diet-opt/internal/config"
	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/models"
)

// Data is the session state the tools operate on.
type Data struct {
	Nutrients *catalog.NutrientCatalog
	Pantry    *catalog.Pantry

	// ConstraintEntries is the raw constraint source, kept so every request can
	// filter it by its own demographic.
	ConstraintEntries []constraints.Entry
	// DefaultConstraints apply when there is no constraint source.
	DefaultConstraints []models.NutrientConstraint
	Demographic        *models.Demographic
}

func NewData() *Data {
	return &Data{
		Nutrients: catalog.NewNutrientCatalog(),
		Pantry:    catalog.NewPantry(),
	}
}

// LoadData reads the configured sources. Foods are loaded active.
func LoadData(cfg config.DataConfig, logger *zap.Logger) (*Data, error) {
	data := NewData()
	data.Demographic = cfg.Demographic()

	if cfg.Nutrients != "" {
		if err := loadFile(cfg.Nutrients, map[string]func(*os.File) error{
			".json": func(f *os.File) error { return data.Nutrients.LoadJSON(f) },
			".csv":  func(f *os.File) error { return data.Nutrients.LoadCSV(f) },
		}); err != nil {
			return nil, fmt.Errorf("failed to load nutrients: %w", err)
		}
		logger.Info("Loaded nutrients", zap.String("path", cfg.Nutrients), zap.Int("count", data.Nutrients.Len()))
	}

	if cfg.Foods != "" {
		if err := loadFile(cfg.Foods, map[string]func(*os.File) error{
			".json": func(f *os.File) error { return data.Pantry.LoadJSON(f, true) },
			".csv":  func(f *os.File) error { return data.Pantry.LoadCSV(f, true) },
		}); err != nil {
			return nil, fmt.Errorf("failed to load foods: %w", err)
		}
		logger.Info("Loaded foods", zap.String("path", cfg.Foods), zap.Int("count", data.Pantry.Len()))
	}

	if cfg.Constraints != "" {
		entries, err := constraints.ReadFile(cfg.Constraints)
		if err != nil {
			return nil, fmt.Errorf("failed to load constraints: %w", err)
		}
		data.ConstraintEntries = entries
		if _, err := data.Constraints(data.Demographic); err != nil {
			return nil, fmt.Errorf("invalid constraints in %s: %w", cfg.Constraints, err)
		}
		logger.Info("Loaded constraints", zap.String("path", cfg.Constraints), zap.Int("entries", len(entries)))
	} else if cfg.RDACategory != "" {
		data.DefaultConstraints = data.Nutrients.DefaultConstraints(cfg.RDACategory)
		logger.Info("Using nutrient RDAs as constraints",
			zap.String("category", cfg.RDACategory),
			zap.Int("constraints", len(data.DefaultConstraints)))
	}

	return data, nil
}

// Constraints builds the session's constraint set for a demographic; nil falls back to
// the configured default.
func (d *Data) Constraints(demographic *models.Demographic) (*constraints.Set, error) {
	if demographic == nil {
		demographic = d.Demographic
	}
	set := constraints.NewSet()
	if err := set.AddAll(d.DefaultConstraints); err != nil {
		return nil, err
	}
	if err := set.LoadEntries(d.ConstraintEntries, demographic); err != nil {
		return nil, err
	}
	return set, nil
}

func loadFile(path string, loaders map[string]func(*os.File) error) error {
	ext := strings.ToLower(filepath.Ext(path))
	load, ok := loaders[ext]
	if !ok {
		return fmt.Errorf("unsupported file type %q for %s", ext, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return load(f)
}
