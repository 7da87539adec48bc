package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds tunable thresholds for metric extraction and plan comparison.
type Config struct {
	Extract ExtractConfig `json:"extract" yaml:"extract"`
	Compare CompareConfig `json:"compare" yaml:"compare"`
}

// ExtractConfig defines limits and bands used by the metric extractor.
type ExtractConfig struct {
	ExpensiveLimit int     `json:"expensive_limit" yaml:"expensive_limit"`
	WorstEstimates int     `json:"worst_estimates" yaml:"worst_estimates"`
	AccurateLow    float64 `json:"accurate_low" yaml:"accurate_low"`
	AccurateHigh   float64 `json:"accurate_high" yaml:"accurate_high"`
}

// CompareConfig defines significance thresholds for the comparison engine.
type CompareConfig struct {
	SignificantPercent float64 `json:"significant_percent" yaml:"significant_percent"`
	VerdictPercent     float64 `json:"verdict_percent" yaml:"verdict_percent"`
	HitRatioPoints     float64 `json:"hit_ratio_points" yaml:"hit_ratio_points"`
	IOBlocksPercent    float64 `json:"io_blocks_percent" yaml:"io_blocks_percent"`
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Extract: ExtractConfig{
			ExpensiveLimit: 5,
			WorstEstimates: 3,
			AccurateLow:    0.5,
			AccurateHigh:   2.0,
		},
		Compare: CompareConfig{
			SignificantPercent: 10.0,
			VerdictPercent:     10.0,
			HitRatioPoints:     5.0,
			IOBlocksPercent:    10.0,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from the provided path. The format is chosen by
// extension: .yaml/.yml or JSON otherwise. An empty path resets to defaults.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	Use(cfg)
	return nil
}
