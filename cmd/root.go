// Package cmd implements the agrisight command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agrisight",
	Short: "AgriSight - a farming assistant for Southeast Asia",
	Long: `AgriSight is a conversational assistant for smallholder farmers.
It answers questions about crops, weather, pests, and planting schedules,
remembers each farmer's language and location, and can look at photos of
plants to help diagnose problems.

Running agrisight without arguments starts an interactive console session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
