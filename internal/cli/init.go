// Package cli provides Cobra command definitions for drover.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/config"
	"github.com/chazuruo/drover/internal/workflow"
)

// InitOptions contains the options for the init command.
type InitOptions struct {
	// Scriptable/flag options for --no-tui mode
	Name        string
	Model       string
	Out         string
	WithReview  bool
	WriteConfig bool
	Force       bool
}

// starterPrompt seeds the prompt file the scaffold references.
const starterPrompt = `Describe the task for this workflow run.

State the goal, the files involved, and what "done" looks like. The
agent step that follows reads this file as its instructions.
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new workflow",
		Long: `Scaffold a starter workflow document and its prompt file.

The init command guides you through the basics:
- Pick a workflow name and model
- Choose where the document goes
- Optionally add an apply_diff review step

The generated document validates cleanly, so 'drover validate' and
'drover run' work on it immediately.

Use --no-tui with flags for scripted setup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "workflow name")
	cmd.Flags().StringVar(&opts.Model, "model", "${MODEL_ID}", "model identifier or ${VAR} placeholder")
	cmd.Flags().StringVar(&opts.Out, "out", "workflow.yaml", "output path for the workflow document")
	cmd.Flags().BoolVar(&opts.WithReview, "with-review", true, "include an apply_diff review step")
	cmd.Flags().BoolVar(&opts.WriteConfig, "write-config", false, "write a default config file if none exists")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing workflow document")

	return cmd
}

func runInit(opts *InitOptions) error {
	if IsNoTUI() {
		return runInitNonInteractive(opts)
	}
	return runInitInteractive(opts)
}

// runInitInteractive runs the init wizard with TUI.
func runInitInteractive(opts *InitOptions) error {
	var (
		name       = opts.Name
		model      string
		out        = opts.Out
		withReview = opts.WithReview
	)

	// Step 1: Name and model
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workflow name").
				Description("Display name for the workflow").
				Value(&name).Placeholder("my-workflow"),
			huh.NewSelect[string]().
				Title("Model").
				Options(
					huh.NewOption("Claude Sonnet 4 (Bedrock)", "anthropic.claude-sonnet-4-20250514-v1:0"),
					huh.NewOption("Claude Opus 4 (Bedrock)", "anthropic.claude-opus-4-20250514-v1:0"),
					huh.NewOption("Resolve at run time from ${MODEL_ID}", "${MODEL_ID}"),
				).
				Value(&model),
		),
	).Run(); err != nil {
		return fmt.Errorf("form error: %w", err)
	}

	if name == "" {
		name = "my-workflow"
	}

	// Step 2: Output and review step
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Output path").
				Description("Where the workflow document is written").
				Value(&out).Placeholder("workflow.yaml"),
			huh.NewConfirm().
				Title("Include an apply_diff review step?").
				Value(&withReview),
		),
	).Run(); err != nil {
		return fmt.Errorf("form error: %w", err)
	}

	if out == "" {
		out = "workflow.yaml"
	}

	writeConfig := opts.WriteConfig
	if config.DetectConfigPath() == "" && !writeConfig {
		if err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Write a default config to ~/.config/drover/config.toml?").
					Value(&writeConfig),
			),
		).Run(); err != nil {
			return fmt.Errorf("form error: %w", err)
		}
	}

	scaffolded := *opts
	scaffolded.Name = name
	scaffolded.Model = model
	scaffolded.Out = out
	scaffolded.WithReview = withReview
	scaffolded.WriteConfig = writeConfig
	return writeScaffold(&scaffolded)
}

// runInitNonInteractive runs init in non-TUI mode using flags.
func runInitNonInteractive(opts *InitOptions) error {
	if opts.Name == "" {
		return fmt.Errorf("--name is required in non-interactive mode")
	}
	return writeScaffold(opts)
}

func writeScaffold(opts *InitOptions) error {
	if _, err := os.Stat(opts.Out); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", opts.Out)
	}

	promptRel := filepath.Join("prompts", "task.md")
	wf := starterWorkflow(opts.Name, opts.Model, promptRel, opts.WithReview)

	data, err := workflow.MarshalWorkflow(wf)
	if err != nil {
		return err
	}
	// Round-trip through the validator so a scaffold that would not pass
	// `drover validate` is never written.
	if _, err := workflow.Validate(data); err != nil {
		return fmt.Errorf("generated workflow failed validation: %w", err)
	}

	outDir := filepath.Dir(opts.Out)
	if err := os.MkdirAll(filepath.Join(outDir, "prompts"), 0755); err != nil {
		return fmt.Errorf("failed to create prompts directory: %w", err)
	}
	promptPath := filepath.Join(outDir, promptRel)
	if _, err := os.Stat(promptPath); os.IsNotExist(err) {
		if err := os.WriteFile(promptPath, []byte(starterPrompt), 0644); err != nil {
			return fmt.Errorf("failed to write prompt file: %w", err)
		}
	}
	if err := os.WriteFile(opts.Out, data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow document: %w", err)
	}

	if opts.WriteConfig && config.DetectConfigPath() == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate home directory: %w", err)
		}
		configPath := filepath.Join(home, ".config", "drover", "config.toml")
		if err := config.Write(configPath, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("%s wrote default config to %s\n", successStyle.Render("✓"), configPath)
	}

	fmt.Printf("%s scaffolded workflow %q\n", successStyle.Render("✓"), opts.Name)
	fmt.Printf("  Document: %s\n", opts.Out)
	fmt.Printf("  Prompt:   %s\n", promptPath)
	fmt.Printf("\nNext: edit %s, then try 'drover validate %s'.\n", promptPath, opts.Out)

	return nil
}

// starterWorkflow builds the scaffold document: prompt, agent, cmd, and
// optionally an apply_diff review step.
func starterWorkflow(name, model, promptFile string, withReview bool) *workflow.Workflow {
	steps := []workflow.Step{
		{
			ID:             "gather-context",
			Type:           workflow.StepPrompt,
			PromptFile:     promptFile,
			AvailableTools: []string{"read_file", "search"},
		},
		{
			ID:   "implement",
			Type: workflow.StepAgent,
			Policy: &workflow.Policy{
				TimeoutSeconds: 900,
				MaxFiles:       20,
				MaxEdits:       40,
				AllowedPaths:   []string{"src/**", "internal/**"},
				CmdAllowlist:   []string{"go build", "go test"},
			},
		},
		{
			ID:      "run-tests",
			Type:    workflow.StepCmd,
			Command: "go test ./...",
			OnError: workflow.OnErrorFail,
		},
	}
	if withReview {
		steps = append(steps, workflow.Step{
			ID:      "review",
			Type:    workflow.StepApplyDiff,
			Approve: true,
		})
	}

	return &workflow.Workflow{
		SchemaVersion: workflow.SchemaVersion,
		Name:          name,
		Model:         model,
		Steps:         steps,
	}
}
