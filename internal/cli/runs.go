// Package cli provides Cobra command definitions for drover.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/runstore"
)

// OutputFormat defines the output format for the runs list command.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatPlain OutputFormat = "plain"
)

// RunsOptions contains the options shared by the runs subcommands.
type RunsOptions struct {
	ConfigPath string
	RunsDir    string
	Format     string
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
		Long: `Inspect the runs recorded under the runs directory.

Every run keeps its full state on disk: the document hash it executed,
per-step status, artifacts, and the event log. These commands read that
state; they never modify it.`,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.RunsDir, "runs-dir", "", "runs directory (default: config)")

	cmd.AddCommand(newRunsListCommand(opts))
	cmd.AddCommand(newRunsShowCommand(opts))

	return cmd
}

func newRunsListCommand(opts *RunsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Long: `List recorded runs, newest first.

Examples:
  drover runs list                 # table format
  drover runs list --format json   # machine-readable
  drover runs list --format plain  # run ids only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "table", "output format (table, json, plain)")

	return cmd
}

func newRunsShowCommand(opts *RunsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in detail",
		Long: `Show a run's recorded state: the document it executed, overall status,
and every step with its outcome and artifact location.

Examples:
  drover runs show nightly-refactor-20240301-120000-3f9a2c`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, args[0])
		},
	}

	return cmd
}

func openStore(opts *RunsOptions) (*runstore.Store, error) {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	root, err := pickRunsRoot(opts.RunsDir, nil, cfg)
	if err != nil {
		return nil, err
	}
	return runstore.New(root), nil
}

func runRunsList(opts *RunsOptions) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}

	summaries, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	switch OutputFormat(opts.Format) {
	case FormatTable:
		printRunsTable(summaries)
	case FormatJSON:
		return printRunsJSON(summaries)
	case FormatPlain:
		for _, s := range summaries {
			fmt.Println(s.RunID)
		}
	default:
		return fmt.Errorf("invalid format: %s (must be table, json, or plain)", opts.Format)
	}

	return nil
}

// printRunsTable prints run summaries in table format.
func printRunsTable(summaries []runstore.RunSummary) {
	if len(summaries) == 0 {
		fmt.Println("No runs found.")
		return
	}

	headerFmt := func(format string, vals ...interface{}) string {
		return dimStyle.Render(fmt.Sprintf(format, vals...))
	}

	tbl := table.New("RUN ID", "WORKFLOW", "STATUS", "STEPS", "CREATED").
		WithHeaderFormatter(headerFmt).
		WithWidthFunc(lipgloss.Width)

	for _, s := range summaries {
		tbl.AddRow(
			s.RunID,
			s.WorkflowName,
			fmt.Sprintf("%s %s", runIcon(s.Status), s.Status),
			fmt.Sprintf("%d/%d", s.StepsDone, s.StepsTotal),
			formatTimeAgo(s.CreatedAt),
		)
	}

	tbl.Print()
}

func printRunsJSON(summaries []runstore.RunSummary) error {
	type jsonRun struct {
		RunID        string             `json:"run_id"`
		WorkflowName string             `json:"workflow_name"`
		Status       runstore.RunStatus `json:"status"`
		CreatedAt    time.Time          `json:"created_at"`
		StepsTotal   int                `json:"steps_total"`
		StepsDone    int                `json:"steps_done"`
	}

	out := make([]jsonRun, len(summaries))
	for i, s := range summaries {
		out[i] = jsonRun{
			RunID:        s.RunID,
			WorkflowName: s.WorkflowName,
			Status:       s.Status,
			CreatedAt:    s.CreatedAt,
			StepsTotal:   s.StepsTotal,
			StepsDone:    s.StepsDone,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func runRunsShow(opts *RunsOptions, runID string) error {
	store, err := openStore(opts)
	if err != nil {
		return err
	}

	state, err := store.LoadRunState(runID)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", runIcon(state.Status), state.RunID)
	fmt.Printf("  Workflow: %s\n", state.WorkflowName)
	fmt.Printf("  Document: %s\n", state.WorkflowPath)
	fmt.Printf("  Hash:     %s\n", state.DefinitionHash)
	fmt.Printf("  Model:    %s\n", state.Model)
	fmt.Printf("  Created:  %s (%s)\n", state.CreatedAt.Format(time.RFC3339), formatTimeAgo(state.CreatedAt))
	fmt.Printf("  Status:   %s\n", state.Status)
	fmt.Printf("  Artifacts: %s\n", store.RunDir(state.RunID))

	fmt.Println("\nSteps:")
	for i, rec := range state.Steps {
		fmt.Printf("  %s %d. %s (%s) %s%s\n",
			stepIcon(rec.Status), i+1, rec.StepID, rec.Type, rec.Status, stepAnnotations(rec))
		if rec.Violation != nil {
			fmt.Printf("       %s\n", errorStyle.Render(rec.Violation.Message()))
		}
		if rec.Error != "" {
			fmt.Printf("       %s\n", dimStyle.Render(rec.Error))
		}
	}

	return nil
}

// stepAnnotations renders the trailing detail for one step row: duration,
// exit code, noted failure.
func stepAnnotations(rec runstore.StepRecord) string {
	var out string
	if rec.StartedAt != nil && rec.CompletedAt != nil {
		out += fmt.Sprintf(" [%s]", rec.CompletedAt.Sub(*rec.StartedAt).Round(time.Millisecond))
	}
	if rec.ExitCode != nil && *rec.ExitCode != 0 {
		out += fmt.Sprintf(" exit=%d", *rec.ExitCode)
	}
	if rec.FailureNoted {
		out += " " + warnStyle.Render("(failure noted)")
	}
	return out
}
