package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/CanopyHQ/loreweave/internal/transport/stdio"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"stdio"},
	Short:   "Start the memory service (default)",
	Long: `Start the loreweave memory service using the stdio transport.

The server communicates via JSON-RPC over stdin/stdout and is designed
to be embedded into a game engine's NPC runtime as a subprocess.

Examples:
  loreweave serve
  loreweave stdio`,
	RunE: func(cmd *cobra.Command, args []string) error { return runServe() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("loreweave %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory statistics for all known characters",
	Long: `Show per-character memory counts across the recent, buffer, and
vector-index tiers, with each character's last activity time. The
embedding engine's lifecycle status is not shown.

Examples:
  loreweave status`,
	RunE: func(cmd *cobra.Command, args []string) error { return runStatus() },
}

func runServe() error {
	fmt.Fprintln(os.Stderr, "Loreweave - per-character NPC memory service")
	fmt.Fprintln(os.Stderr, "Starting stdio transport...")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "This process communicates via JSON-RPC over stdin/stdout.")
	fmt.Fprintln(os.Stderr, "It is not an interactive CLI — connect a game engine or run 'loreweave help'.")
	fmt.Fprintln(os.Stderr, "")

	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	server := stdio.New(coord)
	return server.Serve()
}

func runStatus() error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	summaries, err := coord.ListCharacters(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list characters: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No characters have any stored memories yet.")
		return nil
	}

	fmt.Println("Loreweave Memory Status:")
	for _, s := range summaries {
		fmt.Printf("  %s: recent=%d buffer=%d longterm=%d last_activity=%s\n",
			s.Character, s.RecentCount, s.BufferCount, s.VectorCount, s.LastActivity.Format("2006-01-02 15:04:05"))
	}
	return nil
}
