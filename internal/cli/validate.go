// Package cli provides Cobra command definitions for drover.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/errs"
	"github.com/chazuruo/drover/internal/workflow"
)

// ValidateOptions contains the options for the validate command.
type ValidateOptions struct {
	Quiet bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow document",
		Long: `Check a workflow document against the schema and the semantic rules.

Both passes run even when the first one finds problems, and every issue
is reported together with its location in the document.

Exit codes: 0 (valid), 21 (invalid).

Examples:
  drover validate workflow.yaml
  drover validate workflow.yaml --quiet && drover run workflow.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "suppress output, report via exit code only")

	return cmd
}

func runValidate(opts *ValidateOptions, path string) error {
	wf, err := workflow.Load(path)
	if err != nil {
		if ve, ok := errs.AsValidationError(err); ok && !opts.Quiet {
			fmt.Printf("%s %s is not a valid workflow:\n", errorStyle.Render("✗"), path)
			printIssues(ve)
		}
		return err
	}

	if opts.Quiet {
		return nil
	}

	fmt.Printf("%s %s is valid\n", successStyle.Render("✓"), path)
	fmt.Printf("  Name:  %s\n", wf.Name)
	fmt.Printf("  Model: %s\n", wf.Model)
	fmt.Printf("  Steps: %d\n", len(wf.Steps))
	for i, step := range wf.Steps {
		fmt.Printf("    %d. %s (%s)\n", i+1, step.ID, step.Type)
	}

	names := workflow.Placeholders(wf)
	if len(names) > 0 {
		fmt.Printf("  Variables: %s\n", joinPlaceholders(names))
	}

	return nil
}
