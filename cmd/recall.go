package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var recallCmd = &cobra.Command{
	Use:   "recall <character> <query>",
	Short: "Search a character's long-term memory by similarity",
	Long: `Embed query and search character's vector index for the k most
similar memories.

Examples:
  loreweave recall elenora "how does the player feel about the amulet"
  loreweave recall elenora "amulet" --k 5`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		return runRecall(args[0], args[1], k)
	},
}

var contextCmd = &cobra.Command{
	Use:   "context <character> [query]",
	Short: "Fetch a character's recent memories plus optionally relevant ones",
	Long: `Fetch character's recent-tier memories unconditionally, and, if
query is given, also fetch the k most relevant long-term memories.

Examples:
  loreweave context elenora
  loreweave context elenora "the stolen amulet"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("k")
		query := ""
		if len(args) == 2 {
			query = args[1]
		}
		return runContext(args[0], query, k)
	},
}

func init() {
	recallCmd.Flags().Int("k", 0, "number of results (0 uses the configured default)")
	contextCmd.Flags().Int("k", 0, "number of relevant results (0 uses the configured default)")
}

func runRecall(character, query string, k int) error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	results, err := coord.Search(context.Background(), character, query, k)
	if err != nil {
		return fmt.Errorf("recall failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("[%.3f] %s: %s\n", r.Score, r.Entry.ID, r.Entry.Content)
	}
	return nil
}

func runContext(character, query string, k int) error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	result, err := coord.GetContext(context.Background(), character, query, k)
	if err != nil {
		return fmt.Errorf("context failed: %w", err)
	}

	fmt.Println("Recent:")
	for _, e := range result.Recent {
		fmt.Printf("  %s: %s\n", e.ID, e.Content)
	}
	if query != "" {
		fmt.Println("Relevant:")
		for _, r := range result.Relevant {
			fmt.Printf("  [%.3f] %s: %s\n", r.Score, r.Entry.ID, r.Entry.Content)
		}
	}
	return nil
}
