// Package cli provides Cobra command definitions for drover.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/diagram"
	"github.com/chazuruo/drover/internal/errs"
)

// ExportOptions contains the options for the export command.
type ExportOptions struct {
	Format         string
	Out            string
	CustomTemplate string
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export <workflow.yaml>",
		Short: "Export a workflow as a diagram",
		Long: `Render a workflow's step sequence as a diagram.

Supported formats:
- mermaid (default): Mermaid flowchart
- dot: Graphviz DOT digraph
- json: node/edge list

The document is validated first; an invalid workflow is never rendered.

Examples:
  drover export workflow.yaml                         # Mermaid to stdout
  drover export workflow.yaml --format dot            # Graphviz DOT
  drover export workflow.yaml -f json -o graph.json   # JSON to a file
  drover export workflow.yaml -t custom.tmpl          # custom template`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "mermaid", "output format (mermaid, dot, json)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "-", "output path (default: stdout)")
	cmd.Flags().StringVarP(&opts.CustomTemplate, "template", "t", "", "custom template file")

	return cmd
}

func runExport(opts *ExportOptions, path string) error {
	wf, _, err := loadDefinition(path)
	if err != nil {
		if ve, ok := errs.AsValidationError(err); ok {
			fmt.Printf("%s %s is not a valid workflow:\n", errorStyle.Render("✗"), path)
			printIssues(ve)
		}
		return err
	}

	exporter, err := diagram.NewExporter(diagram.Options{
		Format:         diagram.Format(opts.Format),
		Out:            opts.Out,
		CustomTemplate: opts.CustomTemplate,
	})
	if err != nil {
		return err
	}

	output, err := exporter.Export(wf)
	if err != nil {
		return fmt.Errorf("failed to export workflow: %w", err)
	}

	if opts.Out == "-" || opts.Out == "" {
		fmt.Print(output)
	} else {
		fmt.Printf("Exported %s diagram to: %s\n", opts.Format, opts.Out)
	}

	return nil
}
