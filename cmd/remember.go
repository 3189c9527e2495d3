package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <character> <content>",
	Short: "Store a memory for a character",
	Long: `Store a memory for a character. New memories always enter the
recent tier; if that pushes the oldest entry out, it flows into the
buffer tier and may trigger an automatic embed into long-term storage.

Examples:
  loreweave remember elenora "the player returned the stolen amulet"
  loreweave remember elenora "trusts the player now" --metadata '{"mood":"grateful"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		metadataStr, _ := cmd.Flags().GetString("metadata")
		return runRemember(args[0], args[1], metadataStr)
	},
}

func init() {
	rememberCmd.Flags().String("metadata", "", "JSON object of metadata to attach")
}

func parseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--metadata must be a JSON object: %w", err)
	}
	return m, nil
}

func runRemember(character, content, metadataStr string) error {
	metadata, err := parseMetadata(metadataStr)
	if err != nil {
		return err
	}

	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	result, err := coord.Add(context.Background(), character, content, metadata)
	if err != nil {
		return fmt.Errorf("remember failed: %w", err)
	}

	fmt.Printf("Remembered %s\n", result.ID)
	if result.EvictedToBuffer {
		fmt.Println("  oldest recent memory moved to buffer")
	}
	if result.BufferAutoEmbedded {
		fmt.Println("  buffer threshold reached, auto-embedded into long-term storage")
	}
	return nil
}
