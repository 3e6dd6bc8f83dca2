// Package cli provides Cobra command definitions for drover.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/chazuruo/drover/internal/config"
	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/workflow"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// loadConfig loads the effective configuration for a command.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// buildLogger returns the stderr diagnostic logger for a command run.
// The per-run event log inside the run directory is separate and always on.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if IsVerbose() {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// loadDefinition reads, validates, and hashes a workflow document.
func loadDefinition(path string) (*workflow.Workflow, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read workflow: %w", err)
	}
	wf, err := workflow.Validate(data)
	if err != nil {
		return nil, "", err
	}
	return wf, workflow.Hash(data), nil
}

// lookupFrom builds the placeholder lookup for --var overrides layered
// over the process environment.
func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		return os.LookupEnv(name)
	}
}

// pickRunsRoot resolves the run artifact root: the flag wins, then the
// workflow's env.artifacts_dir, then the configured default.
func pickRunsRoot(flagDir string, wf *workflow.Workflow, cfg *config.Config) (string, error) {
	dir := flagDir
	if dir == "" && wf != nil && wf.Env != nil && wf.Env.ArtifactsDir != "" {
		dir = wf.Env.ArtifactsDir
	}
	if dir == "" {
		dir = cfg.Runs.Dir
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve runs dir: %w", err)
	}
	return abs, nil
}

// printIssues lists every validation finding, one per line.
func printIssues(ve *errs.ValidationError) {
	for _, issue := range ve.Issues {
		fmt.Printf("  %s %s\n", errorStyle.Render("✗"), issue)
	}
}

// stepIcon returns the styled status glyph for a step record.
func stepIcon(status runstore.StepStatus) string {
	switch status {
	case runstore.StepSucceeded:
		return successStyle.Render("✓")
	case runstore.StepFailed:
		return errorStyle.Render("✗")
	case runstore.StepPolicyViolation:
		return errorStyle.Render("⚠")
	case runstore.StepRunning:
		return runningStyle.Render("▶")
	case runstore.StepSkipped:
		return dimStyle.Render("-")
	default:
		return dimStyle.Render("○")
	}
}

// runIcon returns the styled status glyph for a whole run.
func runIcon(status runstore.RunStatus) string {
	switch status {
	case runstore.RunSucceeded:
		return successStyle.Render("✓")
	case runstore.RunFailed:
		return errorStyle.Render("✗")
	default:
		return runningStyle.Render("▶")
	}
}

// formatTimeAgo formats a time as a relative "time ago" string.
func formatTimeAgo(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	}
	if diff < 30*24*time.Hour {
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
	if diff < 365*24*time.Hour {
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1mo ago"
		}
		return fmt.Sprintf("%dmo ago", months)
	}
	years := int(diff.Hours() / 24 / 365)
	if years == 1 {
		return "1y ago"
	}
	return fmt.Sprintf("%dy ago", years)
}
