// Package cmd contains the relay's CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Persona chat relay server",
	Long: `Relay serves persona-driven chat completions over SSE.

It binds a persona record to each request, renders a deterministic system
prompt from it, and runs a bounded tool-calling completion loop with web and
YouTube search tools.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
