package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazuruo/drover/internal/cli"
)

// Version is set at build time using ldflags
var Version = "dev"

// Commit is set at build time using ldflags
var Commit = "unknown"

// Date is set at build time using ldflags
var Date = "unknown"

func main() {
	rootCmd := &cobra.Command{
		Use:   "drover",
		Short: "Declarative agent workflow runner",
		Long: `drover executes declarative YAML workflows that mix prompts, shell
commands, policy-bounded agent work, and diff application. Every run is
recorded on disk step by step, so interrupted or failed runs can be
inspected and resumed exactly where they stopped.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
		SilenceUsage: true,
	}

	// Add global flags
	cli.AddGlobalFlags(rootCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add subcommands
	rootCmd.AddCommand(cli.NewInitCommand())
	rootCmd.AddCommand(cli.NewValidateCommand())
	rootCmd.AddCommand(cli.NewRunCommand())
	rootCmd.AddCommand(cli.NewResumeCommand())
	rootCmd.AddCommand(cli.NewRunsCommand())
	rootCmd.AddCommand(cli.NewExportCommand())
	rootCmd.AddCommand(cli.NewDoctorCommand())
	rootCmd.AddCommand(cli.NewCredsCommand())
	rootCmd.AddCommand(cli.NewVersionCommand(Version, Commit, Date))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(cli.ExitCodeFor(err))
	}
}
