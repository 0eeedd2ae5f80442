// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

func buildWorkerCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start the warden job worker",
		Long: `Start the job worker with all registered handlers.

The worker will:
1. Load configuration from the specified file
2. Open the memory store
3. Register job handlers and start the dispatcher pools
4. Read newline-delimited JSON jobs from stdin and dispatch them
5. Start the periodic memory enforcement schedule, when configured

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  warden worker

  # Start with custom config and debug logging
  warden worker --config /etc/warden/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "warden.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func buildEnforceMemoryCmd() *cobra.Command {
	var (
		configPath string
		tenantID   string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "enforce-memory",
		Short: "Run a one-off memory retention sweep",
		Long: `Archive memory items beyond the configured per-level caps.

Without --tenant/--user the sweep visits every user with active items.
Pinned items are never archived.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnforceMemory(cmd.Context(), configPath, tenantID, userID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "warden.yaml",
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Limit the sweep to one tenant")
	cmd.Flags().StringVar(&userID, "user", "", "Limit the sweep to one user (requires --tenant)")

	return cmd
}

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect registered tools",
	}

	var configPath string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools and their sandbox settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd.Context(), configPath)
		},
	}
	listCmd.Flags().StringVarP(&configPath, "config", "c", "warden.yaml",
		"Path to YAML configuration file")

	cmd.AddCommand(listCmd)
	return cmd
}
