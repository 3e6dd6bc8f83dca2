// Package cli provides global state and utilities for CLI commands.
package cli

import (
	"sync"

	"github.com/spf13/cobra"
)

var (
	// NoTUI indicates that TUI/interactive mode should be disabled.
	// This is set by the global --no-tui flag.
	NoTUI bool

	// Verbose indicates that debug diagnostics should be written to stderr.
	// This is set by the global --verbose flag.
	Verbose bool

	// globalMutex protects the global flags for concurrent access.
	globalMutex sync.RWMutex
)

// AddGlobalFlags adds global flags to a command.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&NoTUI, "no-tui", false,
		"disable TUI/interactive mode; use plain text output")
	cmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false,
		"write debug diagnostics to stderr")
}

// IsNoTUI returns true if TUI mode is disabled.
func IsNoTUI() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return NoTUI
}

// IsVerbose returns true if debug diagnostics are enabled.
func IsVerbose() bool {
	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return Verbose
}
