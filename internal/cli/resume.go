// Package cli provides Cobra command definitions for drover.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/engine"
	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/runstore"
	"github.com/chazuruo/drover/internal/tui"
	"github.com/chazuruo/drover/internal/workflow"
)

// ResumeOptions contains the options for the resume command.
type ResumeOptions struct {
	ConfigPath string
	From       string
	Workflow   string
	Vars       map[string]string
	RunsDir    string
	Cwd        string
	Yes        bool
}

// NewResumeCommand creates the resume command.
func NewResumeCommand() *cobra.Command {
	opts := &ResumeOptions{}

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume a recorded run from a step",
		Long: `Restart a recorded run at the given step. Steps before it keep their
recorded outcomes and artifacts; the step itself and everything after
are reset and re-executed.

The document is re-read from the path the run recorded (or --workflow)
and must be byte-identical to what originally ran; any drift is refused
because the recorded step outcomes would no longer describe the steps
about to execute.

Exit codes: 0 (succeeded), 13 (interrupted), 20 (step failed),
21 (invalid document), 22 (policy violation), 23 (unknown run, unknown
step, or document drift).

Examples:
  drover resume nightly-refactor-20240301-120000-3f9a2c --from run-tests
  drover resume nightly-refactor-20240301-120000-3f9a2c --from implement --workflow moved.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.From, "from", "", "step id to resume from")
	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "document path override (default: recorded path)")
	cmd.Flags().StringToStringVar(&opts.Vars, "var", nil, "placeholder value as NAME=value (repeatable)")
	cmd.Flags().StringVar(&opts.RunsDir, "runs-dir", "", "runs directory (default: config)")
	cmd.Flags().StringVar(&opts.Cwd, "cwd", "", "working directory for executed steps")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "apply proposed diffs without confirmation")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runResume(cmd *cobra.Command, opts *ResumeOptions, runID string) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	root, err := pickRunsRoot(opts.RunsDir, nil, cfg)
	if err != nil {
		return err
	}
	store := runstore.New(root)

	state, err := store.LoadRunState(runID)
	if errs.IsNotFound(err) {
		return &errs.ResumeError{RunID: runID, Err: err}
	}
	if err != nil {
		return err
	}

	docPath := opts.Workflow
	if docPath == "" {
		docPath = state.WorkflowPath
	}
	wf, hash, err := loadDefinition(docPath)
	if err != nil {
		if ve, ok := errs.AsValidationError(err); ok {
			fmt.Printf("%s %s is not a valid workflow:\n", errorStyle.Render("✗"), docPath)
			printIssues(ve)
		}
		return err
	}

	resolved, err := workflow.Resolve(wf, lookupFrom(opts.Vars))
	if err != nil {
		if ce, ok := errs.AsConfigError(err); ok && len(ce.Missing) > 0 {
			fmt.Printf("%s unresolved variables: %s\n",
				errorStyle.Render("✗"), joinPlaceholders(ce.Missing))
			fmt.Println(dimStyle.Render("  pass them with --var NAME=value or export them"))
		}
		return err
	}

	absPath, err := filepath.Abs(docPath)
	if err != nil {
		return fmt.Errorf("failed to resolve document path: %w", err)
	}
	plan := engine.Plan{Definition: resolved, WorkflowPath: absPath, DefinitionHash: hash}

	exec := executionEnv{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		root:        root,
		workDir:     pickWorkDir(opts.Cwd, cfg),
		yes:         opts.Yes,
		initialRows: seedRows(state, opts.From),
	}
	return exec.execute(cmd.Context(), resolved, func(eng *engine.Engine, ctx context.Context) (*runstore.RunState, error) {
		return eng.ResumeRun(ctx, runID, opts.From, plan)
	})
}

// seedRows carries the recorded outcomes of the steps before the resume
// point into the display; the rest start over as pending.
func seedRows(state *runstore.RunState, fromStepID string) []tui.StepRow {
	fromIdx := state.StepIndex(fromStepID)
	if fromIdx < 0 {
		return nil
	}
	rows := make([]tui.StepRow, len(state.Steps))
	for i, rec := range state.Steps {
		status := rec.Status
		if i >= fromIdx {
			status = runstore.StepPending
		}
		rows[i] = tui.StepRow{ID: rec.StepID, Type: rec.Type, Status: status}
	}
	return rows
}
