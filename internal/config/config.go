// Package config provides configuration management for drover.
//
// The configuration is stored in TOML format and supports validation
// and default values for all fields.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Config is the top-level configuration struct for drover.
// It contains all configuration sections as embedded structs.
type Config struct {
	Runs   RunsConfig   `toml:"runs"`
	Runner RunnerConfig `toml:"runner"`
	Agent  AgentConfig  `toml:"agent"`
	AWS    AWSConfig    `toml:"aws"`
	TUI    TUIConfig    `toml:"tui"`
	Log    LogConfig    `toml:"log"`
}

// RunsConfig contains run store settings.
type RunsConfig struct {
	// Dir is the root directory for run artifacts. A workflow's
	// env.artifacts_dir, when set, takes precedence for that workflow.
	Dir string `toml:"dir"`
}

// RunnerConfig contains cmd step runner settings.
type RunnerConfig struct {
	// Shell is the shell for cmd steps.
	// Valid values: "bash", "zsh", "sh", "pwsh".
	Shell string `toml:"shell"`

	// WorkDir is the working directory for steps (empty = current).
	WorkDir string `toml:"work_dir"`

	// StreamOutput controls whether step output is echoed live.
	StreamOutput bool `toml:"stream_output"`
}

// AgentConfig contains agent subprocess settings.
type AgentConfig struct {
	// Command is the agent CLI invocation, argv-style.
	Command []string `toml:"command"`

	// DefaultModel fills the MODEL variable when the environment does
	// not provide one.
	DefaultModel string `toml:"default_model"`
}

// AWSConfig contains AWS settings for the doctor probes and the
// credential process.
type AWSConfig struct {
	// Region overrides the SDK's region resolution when set.
	Region string `toml:"region"`

	// Profile selects a shared-config profile (empty = default chain).
	Profile string `toml:"profile"`

	// IdentityPoolID is the default Cognito identity pool for `drover creds`.
	IdentityPoolID string `toml:"identity_pool_id"`

	// RoleARN is the default role for web-identity federation.
	RoleARN string `toml:"role_arn"`
}

// TUIConfig contains terminal UI settings.
type TUIConfig struct {
	// Enabled controls whether runs render through the TUI (when false,
	// falls back to plain line output).
	Enabled bool `toml:"enabled"`
}

// LogConfig contains diagnostic logging settings.
type LogConfig struct {
	// Level is the minimum level to emit.
	// Valid values: "debug", "info", "warn", "error".
	Level string `toml:"level"`

	// Format selects the handler.
	// Valid values: "text", "json".
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with all default values set.
func DefaultConfig() *Config {
	usr, _ := user.Current()
	homeDir := ""
	if usr != nil {
		homeDir = usr.HomeDir
	}

	// Detect default shell from environment
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "bash"
	} else {
		// Extract shell name from path (e.g., /bin/zsh -> zsh)
		shell = filepath.Base(shell)
	}

	return &Config{
		Runs: RunsConfig{
			Dir: filepath.Join(homeDir, ".local", "share", "drover", "runs"),
		},
		Runner: RunnerConfig{
			Shell:        shell,
			WorkDir:      "",
			StreamOutput: true,
		},
		Agent: AgentConfig{
			Command:      []string{"claude"},
			DefaultModel: "",
		},
		AWS: AWSConfig{
			Region:         "",
			Profile:        "",
			IdentityPoolID: "",
			RoleARN:        "",
		},
		TUI: TUIConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for valid values.
// Returns a nil error if the config is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if c.Runs.Dir == "" {
		return fmt.Errorf("runs.dir cannot be empty")
	}

	validShells := map[string]bool{
		"bash": true,
		"zsh":  true,
		"sh":   true,
		"pwsh": true,
	}
	if !validShells[c.Runner.Shell] {
		return fmt.Errorf("runner.shell must be one of: bash, zsh, sh, pwsh; got %q", c.Runner.Shell)
	}

	if len(c.Agent.Command) == 0 {
		return fmt.Errorf("agent.command cannot be empty")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json; got %q", c.Log.Format)
	}

	return nil
}
