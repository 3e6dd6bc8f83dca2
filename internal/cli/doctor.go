// Package cli provides Cobra command definitions for drover.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/doctor"
)

// DoctorOptions contains the options for the doctor command.
type DoctorOptions struct {
	ConfigPath string
	Region     string
	JSON       bool
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local environment for running workflows",
		Long: `Probe the local environment for everything a workflow run needs:
the agent command on PATH, DNS and HTTPS reachability of the Bedrock
and STS endpoints, resolvable AWS credentials, and Anthropic model
access in the configured region.

Exit codes: 0 (all checks passed), 1 (a check failed), 2 (warnings only).

Examples:
  drover doctor
  drover doctor --region us-west-2
  drover doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&opts.Region, "region", "", "AWS region to probe (default: config, then AWS_REGION)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "output results as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	region := opts.Region
	if region == "" {
		region = cfg.AWS.Region
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	d := doctor.New(region,
		doctor.WithProfile(cfg.AWS.Profile),
		doctor.WithAgentCommand(cfg.Agent.Command),
	)
	results := d.RunChecks(cmd.Context())

	if opts.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		printCheckResults(results)
	}

	switch code := doctor.ExitCode(results); code {
	case 0:
		return nil
	case 2:
		return &exitError{code: ExitWarnings, msg: "environment checks reported warnings"}
	default:
		return &exitError{code: code, msg: "environment checks failed"}
	}
}

func printCheckResults(results []doctor.CheckResult) {
	for _, r := range results {
		var icon string
		switch r.Status {
		case doctor.StatusPass:
			icon = successStyle.Render("✓")
		case doctor.StatusWarn:
			icon = warnStyle.Render("⚠")
		default:
			icon = errorStyle.Render("✗")
		}
		fmt.Printf("%s %-22s %s\n", icon, r.Name, r.Message)
		if r.Fix != "" {
			fmt.Printf("  %s\n", dimStyle.Render("fix: "+r.Fix))
		}
	}
}
