package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CanopyHQ/loreweave/internal/bundle"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a bundle produced by export",
	Long: `Import memories from a .lorebundle file previously produced by
'loreweave export'. Every memory re-enters through the recent tier, so
importing may trigger evictions and auto-embeds exactly as if the
memories had just been remembered.

Examples:
  loreweave import elenora-backup.lorebundle`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runImport(args[0]) },
}

var exportCmd = &cobra.Command{
	Use:   "export <character> [output]",
	Short: "Export a character's memories to a bundle file",
	Long: `Export every memory character currently has, across all three
tiers, into a self-describing .lorebundle file.

Examples:
  loreweave export elenora
  loreweave export elenora elenora-backup.lorebundle`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := ""
		if len(args) == 2 {
			output = args[1]
		}
		return runExport(args[0], output)
	},
}

func runImport(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open bundle: %w", err)
	}
	defer f.Close()

	payload, err := bundle.Read(f)
	if err != nil {
		return fmt.Errorf("cannot read bundle: %w", err)
	}

	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	result, err := coord.Import(context.Background(), bundle.ToImportItems(payload))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported %d memories for %s\n", result.Imported, payload.Manifest.Character)
	if len(result.Failed) > 0 {
		fmt.Printf("Failed %d:\n", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Printf("  item %d: %s\n", f.Index, f.Error)
		}
	}
	return nil
}

func runExport(character, output string) error {
	coord, err := openCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	memories, err := coord.Export(context.Background(), character)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if len(memories) == 0 {
		fmt.Println("No memories to export.")
		return nil
	}

	if output == "" {
		output = fmt.Sprintf("%s-%s.lorebundle", character, time.Now().Format("2006-01-02"))
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("cannot create bundle file: %w", err)
	}
	defer f.Close()

	if err := bundle.Write(f, character, memories); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}

	fmt.Printf("Exported %d memories for %s to %s\n", len(memories), character, output)
	return nil
}
