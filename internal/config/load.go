package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

// Load reads, parses, and validates the configuration.
//
// Pipeline: read file (missing file → defaults) → parse → fill defaults →
// apply environment overrides → validate → expand ~ in paths. The returned
// Config is complete: every field holds a usable value.
func Load() (*Config, error) {
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[CONFIG] %s not found, using defaults", path)
			cfg := Default()
			applyEnv(cfg)
			if err := Validate(cfg); err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
			expandPaths(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	expandPaths(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Environment wins over
// the file so a one-off `OLLAMA_HOST=... luna` works without editing config.
// OLLAMA_HOST may be a bare host:port; a scheme is added when missing.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("LUNA_MODEL"); v != "" {
		cfg.Model.Name = v
	}
}

// expandPaths expands ~ to the home directory in all path fields.
func expandPaths(cfg *Config) {
	cfg.Memory.Dir = ExpandHome(cfg.Memory.Dir)
	cfg.Log.File = ExpandHome(cfg.Log.File)
	cfg.Log.Audit = ExpandHome(cfg.Log.Audit)
}
