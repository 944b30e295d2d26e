// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the history database and result snapshots
	LogLevel     string
	Port         int
	DevMode      bool
	LookbackDays int    // History window loaded for each optimization
	Schedule     string // Cron spec for scheduled re-optimization; empty disables it
	PresetsPath  string // Optional YAML file with optimizer parameter presets

	Optimizer optimizer.Config
}

// Load reads configuration from the environment (.env is loaded when
// present) and, if OPTIMIZER_PRESETS points at a YAML file, merges the
// optimizer parameter presets from it.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:      getEnv("DATA_DIR", "./data"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnv("DEV_MODE", "false") == "true",
		LookbackDays: 756, // three years of trading days
		Schedule:     getEnv("OPTIMIZER_SCHEDULE", ""),
		PresetsPath:  getEnv("OPTIMIZER_PRESETS", ""),
		Optimizer:    optimizer.DefaultConfig(),
	}

	port, err := strconv.Atoi(getEnv("PORT", "8090"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	cfg.Port = port

	if v := os.Getenv("LOOKBACK_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOOKBACK_DAYS: %w", err)
		}
		cfg.LookbackDays = days
	}

	if cfg.PresetsPath != "" {
		if err := loadPresets(cfg.PresetsPath, &cfg.Optimizer); err != nil {
			return nil, fmt.Errorf("failed to load optimizer presets: %w", err)
		}
	}

	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	cfg.DataDir = absDir

	return cfg, nil
}

// loadPresets overlays optimizer parameters from a YAML presets file.
func loadPresets(path string, dst *optimizer.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// getEnv retrieves an environment variable value, returning a fallback if the
// variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
