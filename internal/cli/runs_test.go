// Package cli provides tests for CLI commands.
package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazuruo/drover/internal/config"
	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/workflow"
)

// writeTestConfig pins the machine-dependent fields so the config passes
// validation anywhere, and points the store at a per-test directory.
func writeTestConfig(t *testing.T) (configPath, runsDir string) {
	t.Helper()

	tmp := t.TempDir()
	runsDir = filepath.Join(tmp, "runs")

	cfg := config.DefaultConfig()
	cfg.Runs.Dir = runsDir
	cfg.Runner.Shell = "bash"

	configPath = filepath.Join(tmp, "config.toml")
	if err := config.Write(configPath, cfg); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath, runsDir
}

func TestRunRunsList_EmptyStore(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	opts := &RunsOptions{ConfigPath: configPath, Format: "plain"}
	if err := runRunsList(opts); err != nil {
		t.Fatalf("runRunsList() = %v, want nil", err)
	}
}

func TestRunRunsList_InvalidFormat(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	opts := &RunsOptions{ConfigPath: configPath, Format: "csv"}
	err := runRunsList(opts)
	if err == nil {
		t.Fatal("runRunsList() expected error for invalid format, got nil")
	}
	if !strings.Contains(err.Error(), "invalid format") {
		t.Errorf("error should mention the invalid format, got: %v", err)
	}
}

func TestRunRunsList_TableWithRun(t *testing.T) {
	configPath, runsDir := writeTestConfig(t)

	store := runstore.New(runsDir)
	state := &runstore.RunState{
		RunID:        "demo-20240301-120000-3f9a2c",
		WorkflowName: "demo",
		Status:       runstore.RunSucceeded,
		CreatedAt:    store.Now(),
		Steps: []runstore.StepRecord{
			{StepID: "ask", Type: workflow.StepPrompt, Status: runstore.StepSucceeded},
		},
	}
	if err := store.CreateRun(state); err != nil {
		t.Fatalf("failed to seed run: %v", err)
	}

	opts := &RunsOptions{ConfigPath: configPath, Format: "table"}
	if err := runRunsList(opts); err != nil {
		t.Fatalf("runRunsList() = %v, want nil", err)
	}
}

func TestRunRunsShow_NotFound(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	opts := &RunsOptions{ConfigPath: configPath}
	if err := runRunsShow(opts, "no-such-run"); err == nil {
		t.Fatal("runRunsShow() expected error for unknown run, got nil")
	}
}

func TestRunRunsShow_RendersState(t *testing.T) {
	configPath, runsDir := writeTestConfig(t)

	store := runstore.New(runsDir)
	exit := 2
	state := &runstore.RunState{
		RunID:        "demo-20240301-120000-3f9a2c",
		WorkflowName: "demo",
		Status:       runstore.RunFailed,
		CreatedAt:    store.Now(),
		Steps: []runstore.StepRecord{
			{StepID: "ask", Type: workflow.StepPrompt, Status: runstore.StepSucceeded},
			{StepID: "check", Type: workflow.StepCmd, Status: runstore.StepFailed, ExitCode: &exit, Error: "command exited 2"},
		},
	}
	if err := store.CreateRun(state); err != nil {
		t.Fatalf("failed to seed run: %v", err)
	}

	opts := &RunsOptions{ConfigPath: configPath}
	if err := runRunsShow(opts, state.RunID); err != nil {
		t.Fatalf("runRunsShow() = %v, want nil", err)
	}
}
