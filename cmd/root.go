package cmd

import (
	"github.com/spf13/cobra"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:   "loreweave",
	Short: "Loreweave - per-character NPC memory service",
	Long:  "Loreweave is a three-tier memory engine for NPCs: recent, buffer, and vector-indexed long-term recall.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the loreweave command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(charactersCmd)
	rootCmd.AddCommand(embedNowCmd)

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	rootCmd.AddCommand(doctorCmd)
}
