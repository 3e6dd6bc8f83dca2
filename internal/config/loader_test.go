package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDetectConfigPath_NoConfig tests that empty string is returned when no config exists.
func TestDetectConfigPath_NoConfig(t *testing.T) {
	// We can't easily mock the home directory, so we just verify
	// the function returns something (either a path or empty string).
	path := DetectConfigPath()
	// If a config exists, it should be an absolute path
	// If no config exists, it should be empty
	if path != "" {
		if !filepath.IsAbs(path) {
			t.Errorf("DetectConfigPath() returned non-absolute path: %s", path)
		}
	}
}

// TestLoad_ValidConfig tests loading a valid config file.
func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Write a valid config
	configContent := `
[runs]
dir = "/test/runs"

[runner]
shell = "zsh"
work_dir = "/test/work"
stream_output = false

[agent]
command = ["claude", "--permission-mode", "plan"]
default_model = "claude-sonnet"

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// Config values should override defaults
	if cfg.Runs.Dir != "/test/runs" {
		t.Errorf("expected runs.dir to be '/test/runs', got %q", cfg.Runs.Dir)
	}
	if cfg.Runner.Shell != "zsh" {
		t.Errorf("expected runner.shell to be 'zsh', got %q", cfg.Runner.Shell)
	}
	if cfg.Runner.WorkDir != "/test/work" {
		t.Errorf("expected runner.work_dir to be '/test/work', got %q", cfg.Runner.WorkDir)
	}
	if cfg.Runner.StreamOutput {
		t.Error("expected runner.stream_output to be false")
	}
	if len(cfg.Agent.Command) != 3 || cfg.Agent.Command[0] != "claude" {
		t.Errorf("expected agent.command from config, got %v", cfg.Agent.Command)
	}
	if cfg.Agent.DefaultModel != "claude-sonnet" {
		t.Errorf("expected agent.default_model to be 'claude-sonnet', got %q", cfg.Agent.DefaultModel)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log.level to be 'debug', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format to be 'json', got %q", cfg.Log.Format)
	}
}

// TestLoad_InvalidTOML tests that invalid TOML returns error.
func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Write an invalid config (bad TOML)
	configContent := `
[runs
dir = "/test/runs"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid TOML config, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("error should mention parsing failure, got: %v", err)
	}
}

// TestLoad_ValidationFailed tests that validation failures are returned.
func TestLoad_ValidationFailed(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Write a config that fails validation (invalid shell)
	configContent := `
[runner]
shell = "fish"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("error should mention validation failure, got: %v", err)
	}
}

// TestLoad_FileNotExist tests that Load returns error for non-existent file.
func TestLoad_FileNotExist(t *testing.T) {
	_, err := Load("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should mention file not found, got: %v", err)
	}
}

// TestEnvOverrides_String tests string environment variable overrides.
func TestEnvOverrides_String(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)

	_ = os.Setenv("DROVER_RUNS_DIR", "/env/override/runs")
	_ = os.Setenv("DROVER_RUNNER_SHELL", "sh")
	_ = os.Setenv("DROVER_RUNNER_WORK_DIR", "/env/work")
	_ = os.Setenv("DROVER_AGENT_DEFAULT_MODEL", "claude-opus")
	_ = os.Setenv("DROVER_AWS_REGION", "eu-west-1")
	_ = os.Setenv("DROVER_AWS_PROFILE", "env-profile")
	_ = os.Setenv("DROVER_LOG_LEVEL", "warn")
	_ = os.Setenv("DROVER_LOG_FORMAT", "json")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Runs.Dir != "/env/override/runs" {
		t.Errorf("expected runs.dir from env, got %q", cfg.Runs.Dir)
	}
	if cfg.Runner.Shell != "sh" {
		t.Errorf("expected runner.shell from env, got %q", cfg.Runner.Shell)
	}
	if cfg.Runner.WorkDir != "/env/work" {
		t.Errorf("expected runner.work_dir from env, got %q", cfg.Runner.WorkDir)
	}
	if cfg.Agent.DefaultModel != "claude-opus" {
		t.Errorf("expected agent.default_model from env, got %q", cfg.Agent.DefaultModel)
	}
	if cfg.AWS.Region != "eu-west-1" {
		t.Errorf("expected aws.region from env, got %q", cfg.AWS.Region)
	}
	if cfg.AWS.Profile != "env-profile" {
		t.Errorf("expected aws.profile from env, got %q", cfg.AWS.Profile)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log.level from env, got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format from env, got %q", cfg.Log.Format)
	}
}

// TestEnvOverrides_Bool tests boolean environment variable overrides.
func TestEnvOverrides_Bool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"true", "true", true},
		{"TRUE", "TRUE", true},
		{"1", "1", true},
		{"yes", "yes", true},
		{"on", "on", true},
		{"false", "false", false},
		{"FALSE", "FALSE", false},
		{"0", "0", false},
		{"no", "no", false},
		{"off", "off", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldEnv := saveEnv()
			defer restoreEnv(oldEnv)

			_ = os.Setenv("DROVER_RUNNER_STREAM_OUTPUT", tt.envValue)
			_ = os.Setenv("DROVER_TUI_ENABLED", tt.envValue)

			cfg := DefaultConfig()
			// Flip defaults to test override
			cfg.Runner.StreamOutput = !tt.expected
			cfg.TUI.Enabled = !tt.expected

			applyEnvOverrides(cfg)

			if cfg.Runner.StreamOutput != tt.expected {
				t.Errorf("expected runner.stream_output=%v, got %v", tt.expected, cfg.Runner.StreamOutput)
			}
			if cfg.TUI.Enabled != tt.expected {
				t.Errorf("expected tui.enabled=%v, got %v", tt.expected, cfg.TUI.Enabled)
			}
		})
	}
}

// TestEnvOverrides_Argv tests that agent command overrides split on whitespace.
func TestEnvOverrides_Argv(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)

	_ = os.Setenv("DROVER_AGENT_COMMAND", "claude --permission-mode plan")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	want := []string{"claude", "--permission-mode", "plan"}
	if len(cfg.Agent.Command) != len(want) {
		t.Fatalf("expected agent.command %v, got %v", want, cfg.Agent.Command)
	}
	for i := range want {
		if cfg.Agent.Command[i] != want[i] {
			t.Errorf("agent.command[%d] = %q, want %q", i, cfg.Agent.Command[i], want[i])
		}
	}
}

// TestEnvOverrides_EmptyValue tests that empty env vars don't override defaults.
func TestEnvOverrides_EmptyValue(t *testing.T) {
	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)

	// Set to empty string - should NOT override
	_ = os.Setenv("DROVER_RUNS_DIR", "")
	_ = os.Setenv("DROVER_AGENT_COMMAND", "")

	cfg := DefaultConfig()
	originalDir := cfg.Runs.Dir
	originalCommand := len(cfg.Agent.Command)

	applyEnvOverrides(cfg)

	if cfg.Runs.Dir != originalDir {
		t.Errorf("empty env var should not override, runs.dir changed from %q to %q",
			originalDir, cfg.Runs.Dir)
	}
	if len(cfg.Agent.Command) != originalCommand {
		t.Errorf("empty env var should not override, agent.command changed to %v",
			cfg.Agent.Command)
	}
}

// TestLoad_WithEnvOverrides tests that env overrides apply after loading config.
func TestLoad_WithEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	// Write a valid config
	configContent := `
[runs]
dir = "/config/runs"

[log]
level = "debug"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	oldEnv := saveEnv()
	defer restoreEnv(oldEnv)

	// Set env override
	_ = os.Setenv("DROVER_LOG_LEVEL", "error")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// Dir should come from config
	if cfg.Runs.Dir != "/config/runs" {
		t.Errorf("expected runs.dir from config, got %q", cfg.Runs.Dir)
	}

	// Log level should be overridden by env
	if cfg.Log.Level != "error" {
		t.Errorf("expected log.level from env override, got %q", cfg.Log.Level)
	}
}

// saveEnv saves current environment variables.
func saveEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return env
}

// restoreEnv restores environment variables from a saved map.
func restoreEnv(env map[string]string) {
	// Clear all DROVER_* vars
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "DROVER_") {
			key := strings.SplitN(kv, "=", 2)[0]
			_ = os.Unsetenv(key)
		}
	}
	// Restore saved values
	for k, v := range env {
		if strings.HasPrefix(k, "DROVER_") {
			_ = os.Setenv(k, v)
		}
	}
}
