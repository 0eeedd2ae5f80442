// Package main provides the CLI entry point for the warden execution
// safety core.
//
// Warden sits between an agent runtime and its side effects: tool calls go
// through classification policy, argument validation, and optional process
// sandboxing; outbound messages go through the duplicate-commit gate; and
// agent memory is selected, written, and retained under explicit bounds.
//
// # Basic Usage
//
// Start the job worker:
//
//	warden worker --config warden.yaml
//
// Run a one-off memory retention sweep:
//
//	warden enforce-memory --config warden.yaml
//
// List registered tools:
//
//	warden tools list
//
// # Environment Variables
//
//   - WARDEN_CONFIG: Path to configuration file (overrides --config)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Execution safety core for autonomous agents",
		Long: `Warden guards the boundary between an agent and its side effects:
tool policy, argument validation, process sandboxing, commit gating,
memory selection and retention, and run SLO checks.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildWorkerCmd(),
		buildEnforceMemoryCmd(),
		buildToolsCmd(),
		buildVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("warden %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
