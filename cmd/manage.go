package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <character> <id>",
	Short: "Delete one memory by id",
	Long: `Delete one memory by id, probing the recent tier, then the buffer
tier, then the vector index, and acting in whichever tier holds it.

Examples:
  loreweave forget elenora 01HZY...`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error { return runForget(args[0], args[1]) },
}

var clearCmd = &cobra.Command{
	Use:   "clear <character>",
	Short: "Delete every memory a character has, across all tiers",
	Long: `Delete every memory belonging to character across the recent
tier, the buffer tier, and the vector index, leaving no orphan state.

Examples:
  loreweave clear elenora`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runClear(args[0]) },
}

var charactersCmd = &cobra.Command{
	Use:   "characters",
	Short: "List known characters and their per-tier memory counts",
	RunE:  func(cmd *cobra.Command, args []string) error { return runCharacters() },
}

var embedNowCmd = &cobra.Command{
	Use:   "embed-now <character>",
	Short: "Force-embed a character's buffered memories immediately",
	Long: `Embed all of character's currently buffered memories into
long-term storage now, regardless of whether the buffer threshold has
been reached.

Examples:
  loreweave embed-now elenora`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runEmbedNow(args[0]) },
}

func runForget(character, id string) error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	loc, err := coord.Delete(context.Background(), character, id)
	if err != nil {
		return fmt.Errorf("forget failed: %w", err)
	}
	fmt.Printf("Forgot %s (was in %s)\n", id, loc)
	return nil
}

func runClear(character string) error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	result, err := coord.Clear(context.Background(), character)
	if err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Printf("Cleared %s: recent=%d buffer=%d longterm=%d\n",
		character, result.RecentDeleted, result.BufferDeleted, result.LongtermDeleted)
	return nil
}

func runCharacters() error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	summaries, err := coord.ListCharacters(context.Background())
	if err != nil {
		return fmt.Errorf("list characters failed: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No characters have any stored memories yet.")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%s: recent=%d buffer=%d longterm=%d\n", s.Character, s.RecentCount, s.BufferCount, s.VectorCount)
	}
	return nil
}

func runEmbedNow(character string) error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	count, err := coord.ForceEmbed(context.Background(), character)
	if err != nil {
		return fmt.Errorf("embed-now failed: %w", err)
	}
	fmt.Printf("Embedded %d memories for %s\n", count, character)
	return nil
}
