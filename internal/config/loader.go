// Package config provides configuration management for drover.
//
// This file contains config loading functionality including:
// - XDG config path detection
// - TOML file parsing
// - Environment variable overrides
// - Validation
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DetectConfigPath searches for a config file using XDG standard paths.
// Returns the first config file found, or empty string if none exists.
//
// Search order:
// 1. ~/.config/drover/config.toml
//
// Returns empty string if no config file is found (caller should use defaults).
func DetectConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	configPath := filepath.Join(homeDir, ".config", "drover", "config.toml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	return ""
}

// Load loads a config from the specified path.
// If the file doesn't exist, returns an error.
// After loading, applies environment variable overrides and validates.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Start with defaults
	cfg := DefaultConfig()

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults attempts to load a config from XDG standard paths.
// If no config file is found, returns a config with all default values.
// If a config file is found but fails to load/validate, returns an error.
func LoadWithDefaults() (*Config, error) {
	configPath := DetectConfigPath()
	if configPath == "" {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		expandPaths(cfg)
		return cfg, nil
	}

	return Load(configPath)
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables follow the pattern: DROVER_<SECTION>_<FIELD>
//
// Examples:
// - DROVER_RUNS_DIR overrides [runs].dir
// - DROVER_RUNNER_SHELL overrides [runner].shell
// - DROVER_AGENT_COMMAND overrides [agent].command (whitespace-separated)
//
// Boolean fields: use "true"/"false" strings
func applyEnvOverrides(c *Config) {
	// Helper to lookup and apply string override
	applyString := func(key string, target *string) {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			*target = val
		}
	}

	// Helper to lookup and apply bool override
	applyBool := func(key string, target *bool) {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			switch strings.ToLower(val) {
			case "true", "1", "yes", "on":
				*target = true
			case "false", "0", "no", "off":
				*target = false
			}
		}
	}

	// Helper to lookup and apply argv override
	applyArgv := func(key string, target *[]string) {
		if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
			*target = strings.Fields(val)
		}
	}

	// Runs section
	applyString("DROVER_RUNS_DIR", &c.Runs.Dir)

	// Runner section
	applyString("DROVER_RUNNER_SHELL", &c.Runner.Shell)
	applyString("DROVER_RUNNER_WORK_DIR", &c.Runner.WorkDir)
	applyBool("DROVER_RUNNER_STREAM_OUTPUT", &c.Runner.StreamOutput)

	// Agent section
	applyArgv("DROVER_AGENT_COMMAND", &c.Agent.Command)
	applyString("DROVER_AGENT_DEFAULT_MODEL", &c.Agent.DefaultModel)

	// AWS section
	applyString("DROVER_AWS_REGION", &c.AWS.Region)
	applyString("DROVER_AWS_PROFILE", &c.AWS.Profile)
	applyString("DROVER_AWS_IDENTITY_POOL_ID", &c.AWS.IdentityPoolID)
	applyString("DROVER_AWS_ROLE_ARN", &c.AWS.RoleARN)

	// TUI section
	applyBool("DROVER_TUI_ENABLED", &c.TUI.Enabled)

	// Log section
	applyString("DROVER_LOG_LEVEL", &c.Log.Level)
	applyString("DROVER_LOG_FORMAT", &c.Log.Format)
}

// expandPaths expands ~ to the home directory in path-valued fields.
func expandPaths(c *Config) {
	c.Runs.Dir = expandHome(c.Runs.Dir)
	c.Runner.WorkDir = expandHome(c.Runner.WorkDir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}
